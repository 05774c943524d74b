// Package notify buffers transient per-user notifications until the client
// drains them.
package notify

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Notification struct {
	ID        int       `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

const maxPerOwner = 64

// Feed stores undelivered notifications in memory. Oldest entries are
// dropped once an owner's buffer is full.
type Feed struct {
	mu      sync.Mutex
	byOwner map[string][]Notification
	nextID  int
}

func NewFeed() *Feed {
	return &Feed{byOwner: map[string][]Notification{}, nextID: 1}
}

func (f *Feed) Push(owner string, level Level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := Notification{
		ID:        f.nextID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}
	f.nextID++

	buf := append(f.byOwner[owner], n)
	if len(buf) > maxPerOwner {
		buf = buf[len(buf)-maxPerOwner:]
	}
	f.byOwner[owner] = buf
}

// Drain returns and clears the owner's pending notifications.
func (f *Feed) Drain(owner string) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf := f.byOwner[owner]
	delete(f.byOwner, owner)
	if buf == nil {
		return []Notification{}
	}
	return buf
}
