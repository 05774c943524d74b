// Package store keeps one user's in-memory task list consistent with the
// gateway and owns the soft-delete grace window.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/woodsmokeheart/tracker/internal/clock"
	"github.com/woodsmokeheart/tracker/internal/gateway"
	"github.com/woodsmokeheart/tracker/internal/model"
	"github.com/woodsmokeheart/tracker/internal/productivity"
)

// DefaultGraceWindow is how long a deleted task can still be undone.
const DefaultGraceWindow = 5000 * time.Millisecond

const expireOpTimeout = 10 * time.Second

var (
	ErrEmptyTitle      = errors.New("task title must not be empty")
	ErrTaskNotFound    = errors.New("task not found")
	ErrNoPendingDelete = errors.New("no deletion pending")
	ErrClosed          = errors.New("store is closed")
)

// Outcome reports whether a mutation's optimistic value survived.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeRolledBack
)

// MutationResult is returned from add/toggle/edit so callers (and tests) can
// observe rollback without a network double.
type MutationResult struct {
	Outcome Outcome
	Task    model.Task
	Tasks   []model.Task
}

// pendingDeletion is the single soft-delete slot: the removed snapshot, its
// prior list position, and the countdown toward the durable delete.
type pendingDeletion struct {
	task     model.Task
	index    int
	deadline time.Time
	timer    *time.Timer
	gen      uint64
}

type Options struct {
	Gateway     gateway.Gateway
	Owner       string
	Clock       clock.Clock
	GraceWindow time.Duration
	Logger      *log.Logger
	Aggregator  *productivity.Aggregator
	// Notify surfaces errors that happen outside a request, such as a
	// failed delete at countdown expiry. May be nil.
	Notify func(message string)
}

type Store struct {
	gw     gateway.Gateway
	owner  string
	clock  clock.Clock
	grace  time.Duration
	logger *log.Logger
	agg    *productivity.Aggregator
	notify func(string)

	mu      sync.Mutex
	tasks   []model.Task
	pending *pendingDeletion
	gen     uint64
	loaded  bool
	closed  bool
}

func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Store{
		gw:     opts.Gateway,
		owner:  opts.Owner,
		clock:  opts.Clock,
		grace:  opts.GraceWindow,
		logger: opts.Logger,
		agg:    opts.Aggregator,
		notify: opts.Notify,
	}
}

func (s *Store) Owner() string { return s.owner }

// Aggregator exposes the productivity aggregator driven by this store's
// toggles.
func (s *Store) Aggregator() *productivity.Aggregator { return s.agg }

// Visible returns a copy of the task list with any pending deletion already
// removed.
func (s *Store) Visible() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Task(nil), s.tasks...)
}

// Refresh replaces the cache with the gateway's list, keeping a pending
// deletion hidden so a re-fetch never resurrects it mid-countdown.
func (s *Store) Refresh(ctx context.Context) ([]model.Task, error) {
	tasks, err := s.gw.ListTasks(ctx, s.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.ID != s.pending.task.ID {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	s.tasks = tasks
	s.loaded = true
	return append([]model.Task(nil), s.tasks...), nil
}

// EnsureLoaded primes the cache on first use; the fetch sequence re-runs
// whenever a session appears on a fresh store.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	_, err := s.Refresh(ctx)
	return err
}

// Add validates and inserts a new task, then re-fetches. The record is only
// written once any image upload has already produced imageURL.
func (s *Store) Add(ctx context.Context, title, description, imageURL string) (MutationResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return MutationResult{Outcome: OutcomeRolledBack}, ErrEmptyTitle
	}

	created, err := s.gw.InsertTask(ctx, model.Task{
		Owner:       s.owner,
		Title:       title,
		Description: description,
		ImageURL:    imageURL,
	})
	if err != nil {
		return MutationResult{Outcome: OutcomeRolledBack}, fmt.Errorf("failed to create task: %w", err)
	}

	s.mu.Lock()
	s.tasks = append([]model.Task{created}, s.tasks...)
	s.mu.Unlock()

	tasks := s.refetch(ctx)
	return MutationResult{Outcome: OutcomeConfirmed, Task: created, Tasks: tasks}, nil
}

// Toggle flips a task's completion state. A gateway failure leaves the local
// list untouched; a success additionally drives the productivity counter.
func (s *Store) Toggle(ctx context.Context, id model.TaskID) (MutationResult, error) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return MutationResult{Outcome: OutcomeRolledBack}, ErrTaskNotFound
	}
	task := s.tasks[idx]
	s.mu.Unlock()

	completed := !task.Completed
	patch := gateway.TaskPatch{Completed: &completed}
	if err := s.gw.UpdateTask(ctx, s.owner, id, patch); err != nil {
		return MutationResult{Outcome: OutcomeRolledBack}, fmt.Errorf("failed to update task: %w", err)
	}

	s.mu.Lock()
	if idx := s.indexOfLocked(id); idx >= 0 {
		s.tasks[idx].Completed = completed
		task = s.tasks[idx]
	}
	s.mu.Unlock()

	if s.agg != nil {
		if err := s.agg.RecordToggle(ctx, completed); err != nil {
			s.logger.Printf("tracker: productivity update failed for %s: %v", s.owner, err)
			s.notifyErr("Could not update productivity stats")
		}
	}

	tasks := s.refetch(ctx)
	return MutationResult{Outcome: OutcomeConfirmed, Task: task, Tasks: tasks}, nil
}

// Edit updates title/description/image. Failed gateway updates leave local
// state unchanged.
func (s *Store) Edit(ctx context.Context, id model.TaskID, patch gateway.TaskPatch) (MutationResult, error) {
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		if trimmed == "" {
			return MutationResult{Outcome: OutcomeRolledBack}, ErrEmptyTitle
		}
		patch.Title = &trimmed
	}

	s.mu.Lock()
	if s.indexOfLocked(id) < 0 {
		s.mu.Unlock()
		return MutationResult{Outcome: OutcomeRolledBack}, ErrTaskNotFound
	}
	s.mu.Unlock()

	if err := s.gw.UpdateTask(ctx, s.owner, id, patch); err != nil {
		return MutationResult{Outcome: OutcomeRolledBack}, fmt.Errorf("failed to update task: %w", err)
	}

	var task model.Task
	s.mu.Lock()
	if idx := s.indexOfLocked(id); idx >= 0 {
		applyLocal(&s.tasks[idx], patch)
		task = s.tasks[idx]
	}
	s.mu.Unlock()

	tasks := s.refetch(ctx)
	return MutationResult{Outcome: OutcomeConfirmed, Task: task, Tasks: tasks}, nil
}

// Delete removes the task from the visible list immediately and starts the
// grace countdown. If another deletion is already pending, that one is
// committed to the gateway right away (best effort) and its countdown
// cancelled; at most one grace window exists at a time.
func (s *Store) Delete(ctx context.Context, id model.TaskID) (time.Time, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return time.Time{}, ErrClosed
	}
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return time.Time{}, ErrTaskNotFound
	}

	var preempted *pendingDeletion
	if s.pending != nil {
		s.pending.timer.Stop()
		preempted = s.pending
		s.pending = nil
	}

	task := s.tasks[idx]
	s.tasks = append(s.tasks[:idx:idx], s.tasks[idx+1:]...)

	s.gen++
	gen := s.gen
	deadline := s.clock.Now().Add(s.grace)
	pd := &pendingDeletion{task: task, index: idx, deadline: deadline, gen: gen}
	pd.timer = time.AfterFunc(s.grace, func() { s.expire(gen) })
	s.pending = pd
	s.mu.Unlock()

	if preempted != nil {
		if err := s.gw.DeleteTask(ctx, s.owner, preempted.task.ID); err != nil {
			s.logger.Printf("tracker: commit of preempted delete %s failed: %v", preempted.task.ID, err)
		}
	}
	return deadline, nil
}

// Undo cancels the pending deletion and restores the snapshot at its prior
// position. No gateway delete is ever issued for an undone task.
func (s *Store) Undo() (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return model.Task{}, ErrNoPendingDelete
	}
	pd := s.pending
	pd.timer.Stop()
	s.pending = nil
	s.insertAtLocked(pd.task, pd.index)
	return pd.task, nil
}

// RemainingSeconds reports the undo window left as ceil(expiry-now), floored
// at zero. The second return is false when nothing is pending.
func (s *Store) RemainingSeconds() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return 0, false
	}
	remaining := s.pending.deadline.Sub(s.clock.Now())
	if remaining < 0 {
		return 0, true
	}
	return int(math.Ceil(remaining.Seconds())), true
}

// Close cancels any active countdown without committing it, so no delete can
// fire against a disposed store.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.pending != nil {
		s.pending.timer.Stop()
		s.pending = nil
	}
}

// expire fires when the countdown timer wakes. The deadline is authoritative,
// not the timer: an early wake-up reschedules for the remainder, so the
// commit never happens before the recorded instant even if timers drift.
func (s *Store) expire(gen uint64) {
	s.mu.Lock()
	if s.closed || s.pending == nil || s.pending.gen != gen {
		s.mu.Unlock()
		return
	}
	if remaining := s.pending.deadline.Sub(s.clock.Now()); remaining > 0 {
		pd := s.pending
		pd.timer = time.AfterFunc(remaining, func() { s.expire(gen) })
		s.mu.Unlock()
		return
	}
	pd := s.pending
	s.pending = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expireOpTimeout)
	defer cancel()

	if err := s.gw.DeleteTask(ctx, s.owner, pd.task.ID); err != nil {
		s.mu.Lock()
		s.insertAtLocked(pd.task, pd.index)
		s.mu.Unlock()
		s.logger.Printf("tracker: delete of %s failed after grace window: %v", pd.task.ID, err)
		s.notifyErr(fmt.Sprintf("Could not delete %q", pd.task.Title))
	}
}

// refetch reconciles with the gateway after a confirmed mutation. Failures
// here keep the optimistic list and are reported once out of band.
func (s *Store) refetch(ctx context.Context) []model.Task {
	tasks, err := s.Refresh(ctx)
	if err != nil {
		s.logger.Printf("tracker: refetch for %s failed: %v", s.owner, err)
		s.notifyErr("Could not refresh tasks")
		return s.Visible()
	}
	return tasks
}

func (s *Store) notifyErr(msg string) {
	if s.notify != nil {
		s.notify(msg)
	}
}

func (s *Store) indexOfLocked(id model.TaskID) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) insertAtLocked(t model.Task, idx int) {
	if idx > len(s.tasks) {
		idx = len(s.tasks)
	}
	s.tasks = append(s.tasks[:idx], append([]model.Task{t}, s.tasks[idx:]...)...)
}

func applyLocal(t *model.Task, p gateway.TaskPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.ImageURL != nil {
		t.ImageURL = *p.ImageURL
	}
}
