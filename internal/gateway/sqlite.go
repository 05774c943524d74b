package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/woodsmokeheart/tracker/internal/model"
)

// SQLite persists records in a single local database file. This is the
// local-only mode; the hosted mode uses the postgres gateway instead.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	g := &SQLite{db: db}
	if err := g.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return g, nil
}

func (g *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		completed BOOLEAN DEFAULT FALSE,
		image_url TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_counts (
		owner TEXT NOT NULL,
		date TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		UNIQUE(owner, date)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner);
	CREATE INDEX IF NOT EXISTS idx_daily_counts_owner ON daily_counts(owner);
	`

	_, err := g.db.Exec(schema)
	return err
}

func (g *SQLite) Close() error {
	return g.db.Close()
}

func (g *SQLite) ListTasks(ctx context.Context, owner string) ([]model.Task, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, owner, title, description, completed, image_url, created_at, updated_at
		FROM tasks
		WHERE owner = ?
		ORDER BY created_at DESC, id DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Owner, &t.Title, &t.Description, &t.Completed,
			&t.ImageURL, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (g *SQLite) InsertTask(ctx context.Context, t model.Task) (model.Task, error) {
	now := time.Now()
	t.ID = newID("task")
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := g.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner, title, description, completed, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Owner, t.Title, t.Description, t.Completed, t.ImageURL, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return t, nil
}

func (g *SQLite) UpdateTask(ctx context.Context, owner string, id model.TaskID, patch TaskPatch) error {
	var t model.Task
	err := g.db.QueryRowContext(ctx, `
		SELECT id, owner, title, description, completed, image_url, created_at, updated_at
		FROM tasks
		WHERE id = ? AND owner = ?
	`, id, owner).Scan(&t.ID, &t.Owner, &t.Title, &t.Description, &t.Completed,
		&t.ImageURL, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	applyPatch(&t, patch)

	_, err = g.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, completed = ?, image_url = ?, updated_at = ?
		WHERE id = ? AND owner = ?
	`, t.Title, t.Description, t.Completed, t.ImageURL, time.Now(), id, owner)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func (g *SQLite) DeleteTask(ctx context.Context, owner string, id model.TaskID) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *SQLite) ListCounters(ctx context.Context, owner string) ([]model.DailyCount, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT owner, date, completed
		FROM daily_counts
		WHERE owner = ?
		ORDER BY date DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list counters: %w", err)
	}
	defer rows.Close()

	var counters []model.DailyCount
	for rows.Next() {
		var c model.DailyCount
		if err := rows.Scan(&c.Owner, &c.Date, &c.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

func (g *SQLite) UpsertCounter(ctx context.Context, owner, date string, completed int) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO daily_counts (owner, date, completed)
		VALUES (?, ?, ?)
		ON CONFLICT(owner, date) DO UPDATE SET completed = excluded.completed
	`, owner, date, completed)
	if err != nil {
		return fmt.Errorf("failed to upsert counter: %w", err)
	}
	return nil
}

func (g *SQLite) ClearOwner(ctx context.Context, owner string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM tasks WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM daily_counts WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("failed to clear counters: %w", err)
	}
	return nil
}
