package model

import "time"

type TaskID string

// Task is one tracked item. ID and CreatedAt are assigned by the gateway
// on insert; Owner never changes after creation.
type Task struct {
	ID          TaskID    `json:"id"`
	Owner       string    `json:"owner"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
