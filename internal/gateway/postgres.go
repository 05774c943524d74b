package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woodsmokeheart/tracker/internal/model"
)

// Postgres is the hosted row store. The schema mirrors the sqlite gateway:
//
//	CREATE TABLE tasks (
//	    id TEXT PRIMARY KEY,
//	    owner TEXT NOT NULL,
//	    title TEXT NOT NULL,
//	    description TEXT NOT NULL DEFAULT '',
//	    completed BOOLEAN NOT NULL DEFAULT FALSE,
//	    image_url TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE daily_counts (
//	    owner TEXT NOT NULL,
//	    date TEXT NOT NULL,
//	    completed INTEGER NOT NULL DEFAULT 0,
//	    UNIQUE (owner, date)
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, constr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, constr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (g *Postgres) Close() error {
	g.pool.Close()
	return nil
}

func (g *Postgres) ListTasks(ctx context.Context, owner string) ([]model.Task, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, owner, title, description, completed, image_url, created_at, updated_at
		FROM tasks
		WHERE owner = $1
		ORDER BY created_at DESC, id DESC;
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		err = rows.Scan(
			&t.ID,
			&t.Owner,
			&t.Title,
			&t.Description,
			&t.Completed,
			&t.ImageURL,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (g *Postgres) InsertTask(ctx context.Context, t model.Task) (model.Task, error) {
	now := time.Now()
	t.ID = newID("task")
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := g.pool.Exec(ctx, `
		INSERT INTO tasks (id, owner, title, description, completed, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`, t.ID, t.Owner, t.Title, t.Description, t.Completed, t.ImageURL, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return t, nil
}

func (g *Postgres) UpdateTask(ctx context.Context, owner string, id model.TaskID, patch TaskPatch) error {
	var t model.Task
	err := g.pool.QueryRow(ctx, `
		SELECT id, owner, title, description, completed, image_url, created_at, updated_at
		FROM tasks
		WHERE id = $1 AND owner = $2;
	`, id, owner).Scan(
		&t.ID,
		&t.Owner,
		&t.Title,
		&t.Description,
		&t.Completed,
		&t.ImageURL,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	applyPatch(&t, patch)

	_, err = g.pool.Exec(ctx, `
		UPDATE tasks
		SET title = $1, description = $2, completed = $3, image_url = $4, updated_at = $5
		WHERE id = $6 AND owner = $7;
	`, t.Title, t.Description, t.Completed, t.ImageURL, time.Now(), id, owner)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func (g *Postgres) DeleteTask(ctx context.Context, owner string, id model.TaskID) error {
	tag, err := g.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE id = $1 AND owner = $2;
	`, id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Postgres) ListCounters(ctx context.Context, owner string) ([]model.DailyCount, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT owner, date, completed
		FROM daily_counts
		WHERE owner = $1
		ORDER BY date DESC;
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

func (g *Postgres) UpsertCounter(ctx context.Context, owner, date string, completed int) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO daily_counts (owner, date, completed)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, date) DO UPDATE SET completed = EXCLUDED.completed;
	`, owner, date, completed)
	if err != nil {
		return fmt.Errorf("failed to upsert counter: %w", err)
	}
	return nil
}

func (g *Postgres) ClearOwner(ctx context.Context, owner string) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE owner = $1;`, owner); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM daily_counts WHERE owner = $1;`, owner); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("failed to clear counters: %w", err)
	}
	return tx.Commit(ctx)
}
