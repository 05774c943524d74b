// Package clock abstracts wall-clock reads so time-dependent logic can be
// driven by a fixed clock in tests.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed always reports the same instant. Test use.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
