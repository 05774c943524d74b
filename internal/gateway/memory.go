package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/woodsmokeheart/tracker/internal/model"
)

// Memory keeps records in process memory. Dev/test use.
type Memory struct {
	mu       sync.RWMutex
	tasks    map[model.TaskID]model.Task
	counters map[string]map[string]model.DailyCount // owner -> date -> counter
}

func NewMemory() *Memory {
	return &Memory{
		tasks:    map[model.TaskID]model.Task{},
		counters: map[string]map[string]model.DailyCount{},
	}
}

func (m *Memory) ListTasks(_ context.Context, owner string) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Task, 0)
	for _, t := range m.tasks {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) InsertTask(_ context.Context, t model.Task) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	t.ID = newID("task")
	t.CreatedAt = now
	t.UpdatedAt = now
	m.tasks[t.ID] = t
	return t, nil
}

func (m *Memory) UpdateTask(_ context.Context, owner string, id model.TaskID, patch TaskPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.Owner != owner {
		return ErrNotFound
	}
	applyPatch(&t, patch)
	t.UpdatedAt = time.Now()
	m.tasks[id] = t
	return nil
}

func (m *Memory) DeleteTask(_ context.Context, owner string, id model.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.Owner != owner {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) ListCounters(_ context.Context, owner string) ([]model.DailyCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.DailyCount, 0)
	for _, c := range m.counters[owner] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (m *Memory) UpsertCounter(_ context.Context, owner, date string, completed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDate, ok := m.counters[owner]
	if !ok {
		byDate = map[string]model.DailyCount{}
		m.counters[owner] = byDate
	}
	byDate[date] = model.DailyCount{Owner: owner, Date: date, Completed: completed}
	return nil
}

func (m *Memory) ClearOwner(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		if t.Owner == owner {
			delete(m.tasks, id)
		}
	}
	delete(m.counters, owner)
	return nil
}

func (m *Memory) Close() error { return nil }
