package timesheets

import (
	"context"
	"time"
)

// Entry is one logged block of time. TaskID is optional; project-level time
// is legal.
type Entry struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	TaskID    *int64    `json:"task_id,omitempty"`
	UserID    int64     `json:"user_id"`
	Date      time.Time `json:"date"`
	Hours     float64   `json:"hours"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntryRequest carries attributes for a new entry.
type LogEntryRequest struct {
	ProjectID int64     `json:"project_id"`
	TaskID    *int64    `json:"task_id,omitempty"`
	Date      time.Time `json:"date"`
	Hours     float64   `json:"hours"`
	Note      string    `json:"note,omitempty"`
}

// UpdateEntryRequest carries partial updates to an entry.
type UpdateEntryRequest struct {
	Date  *time.Time `json:"date,omitempty"`
	Hours *float64   `json:"hours,omitempty"`
	Note  *string    `json:"note,omitempty"`
}

// Service defines timesheet management.
type Service interface {
	LogEntry(ctx context.Context, req *LogEntryRequest, userID int64) (*Entry, error)
	ListProjectEntries(ctx context.Context, projectID, userID int64) ([]*Entry, error)
	ListUserEntries(ctx context.Context, userID int64, from, to time.Time) ([]*Entry, error)
	UpdateEntry(ctx context.Context, entryID, userID int64, updates *UpdateEntryRequest) (*Entry, error)
	DeleteEntry(ctx context.Context, entryID, userID int64) error
}
