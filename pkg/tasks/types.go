package tasks

import (
	"context"
	"time"
)

// Status is a task's workflow state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// IsValid reports whether s is a defined status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is a unit of work inside a project. Sequence orders tasks on the
// board within a status column.
type Task struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	AssigneeID  *int64    `json:"assignee_id,omitempty"`
	Sequence    int       `json:"sequence"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateTaskRequest carries attributes for a new task.
type CreateTaskRequest struct {
	ProjectID   int64  `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssigneeID  *int64 `json:"assignee_id,omitempty"`
}

// UpdateTaskRequest carries partial updates to a task. A present AssigneeID
// pointing at 0 clears the assignment.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
	AssigneeID  *int64  `json:"assignee_id,omitempty"`
	Sequence    *int    `json:"sequence,omitempty"`
}

// Service defines task management. All operations authorize through the
// project ACL before touching task rows.
type Service interface {
	CreateTask(ctx context.Context, req *CreateTaskRequest, creatorUserID int64) (*Task, error)
	GetTask(ctx context.Context, taskID, userID int64) (*Task, error)
	ListProjectTasks(ctx context.Context, projectID, userID int64) ([]*Task, error)
	ListAssignedTasks(ctx context.Context, userID int64) ([]*Task, error)
	UpdateTask(ctx context.Context, taskID, userID int64, updates *UpdateTaskRequest) (*Task, error)
	DeleteTask(ctx context.Context, taskID, userID int64) error
}
