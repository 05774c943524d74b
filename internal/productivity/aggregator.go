// Package productivity maintains one counter per calendar day reflecting net
// task completions, and answers time-windowed statistics over them.
package productivity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/woodsmokeheart/tracker/internal/clock"
	"github.com/woodsmokeheart/tracker/internal/gateway"
	"github.com/woodsmokeheart/tracker/internal/model"
)

type Range string

const (
	RangeDay   Range = "day"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
)

var ErrUnknownRange = errors.New("unknown stats range")

// Summary is a windowed aggregate. Average carries one decimal place and is
// "0" when the window holds no data.
type Summary struct {
	Total   int    `json:"total"`
	Average string `json:"average"`
}

// Aggregator owns one user's counter cache. The gateway record stays
// authoritative: every mutation re-fetches the full counter list.
type Aggregator struct {
	gw    gateway.Gateway
	owner string
	clock clock.Clock

	mu       sync.Mutex
	counters []model.DailyCount
	loaded   bool
}

func New(gw gateway.Gateway, owner string, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Aggregator{gw: gw, owner: owner, clock: clk}
}

// Refresh replaces the cache with the gateway's counter list.
func (a *Aggregator) Refresh(ctx context.Context) ([]model.DailyCount, error) {
	counters, err := a.gw.ListCounters(ctx, a.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch counters: %w", err)
	}
	a.mu.Lock()
	a.counters = counters
	a.loaded = true
	a.mu.Unlock()
	return append([]model.DailyCount(nil), counters...), nil
}

// EnsureLoaded primes the cache on first use.
func (a *Aggregator) EnsureLoaded(ctx context.Context) error {
	a.mu.Lock()
	loaded := a.loaded
	a.mu.Unlock()
	if loaded {
		return nil
	}
	_, err := a.Refresh(ctx)
	return err
}

// Counters returns a copy of the cached counter list, newest date first.
func (a *Aggregator) Counters() []model.DailyCount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.DailyCount(nil), a.counters...)
}

// RecordToggle applies one completion toggle to today's counter: +1 when
// completing, -1 otherwise, creating the counter at 1 on a first completion.
// The value is clamped at zero; an un-completing toggle on a day with no
// counter writes nothing.
func (a *Aggregator) RecordToggle(ctx context.Context, completing bool) error {
	if err := a.EnsureLoaded(ctx); err != nil {
		return err
	}
	today := a.clock.Now().Format(model.DateLayout)

	a.mu.Lock()
	current, exists := 0, false
	for _, c := range a.counters {
		if c.Date == today {
			current, exists = c.Completed, true
			break
		}
	}
	a.mu.Unlock()

	next := current
	if completing {
		next++
	} else {
		next--
	}
	if next < 0 {
		next = 0
	}
	if !exists && !completing {
		// Nothing to decrement; keep the gateway untouched.
		_, err := a.Refresh(ctx)
		return err
	}

	if err := a.gw.UpsertCounter(ctx, a.owner, today, next); err != nil {
		return fmt.Errorf("failed to record toggle: %w", err)
	}
	_, err := a.Refresh(ctx)
	return err
}

// QueryWindow filters cached counters to those on or after the window start
// and sums them.
func (a *Aggregator) QueryWindow(r Range) (Summary, error) {
	now := a.clock.Now()

	var start time.Time
	switch r {
	case RangeDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case RangeWeek:
		start = now.AddDate(0, 0, -7)
	case RangeMonth:
		start = now.AddDate(0, -1, 0)
	default:
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownRange, r)
	}
	startDate := start.Format(model.DateLayout)

	a.mu.Lock()
	defer a.mu.Unlock()

	total, days := 0, 0
	for _, c := range a.counters {
		if c.Date >= startDate {
			total += c.Completed
			days++
		}
	}

	if days == 0 {
		return Summary{Total: 0, Average: "0"}, nil
	}
	return Summary{
		Total:   total,
		Average: fmt.Sprintf("%.1f", float64(total)/float64(days)),
	}, nil
}
