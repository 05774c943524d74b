package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/woodsmokeheart/tracker/internal/model"
)

var ErrNotFound = errors.New("record not found")

// TaskPatch is a partial task update.
// nil pointer => "no change"
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// Gateway is the durable record store behind the task tracker. Every call
// may fail with a transport error; callers treat all failures uniformly and
// never retry.
type Gateway interface {
	// ListTasks returns the owner's tasks ordered by creation time descending.
	ListTasks(ctx context.Context, owner string) ([]model.Task, error)
	// InsertTask stores a new task and assigns its ID and timestamps.
	InsertTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, owner string, id model.TaskID, patch TaskPatch) error
	DeleteTask(ctx context.Context, owner string, id model.TaskID) error

	// ListCounters returns the owner's daily counters ordered by date descending.
	ListCounters(ctx context.Context, owner string) ([]model.DailyCount, error)
	// UpsertCounter inserts or replaces the counter keyed by (owner, date).
	UpsertCounter(ctx context.Context, owner, date string, completed int) error

	// ClearOwner removes every task and counter belonging to the owner.
	ClearOwner(ctx context.Context, owner string) error

	Close() error
}

func newID(prefix string) model.TaskID {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return model.TaskID(prefix + "_" + hex.EncodeToString(b[:]))
}

func applyPatch(t *model.Task, p TaskPatch) {
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
