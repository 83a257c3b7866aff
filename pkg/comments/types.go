package comments

import (
	"context"
	"time"
)

// Comment is one node of a task's comment thread. A soft-deleted comment
// keeps its row with an emptied body so children stay attached.
type Comment struct {
	ID        int64      `json:"id"`
	ProjectID int64      `json:"project_id"`
	TaskID    int64      `json:"task_id"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	AuthorID  int64      `json:"author_id"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// CreateCommentRequest carries attributes for a new comment or reply. The
// task decides which project the comment lands in; there is no way to file
// a comment under a different project than its task.
type CreateCommentRequest struct {
	TaskID   int64  `json:"task_id"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Body     string `json:"body"`
}

// Service defines comment management.
type Service interface {
	CreateComment(ctx context.Context, req *CreateCommentRequest, authorID int64) (*Comment, error)
	ListTaskComments(ctx context.Context, taskID, userID int64) ([]*Comment, error)
	UpdateComment(ctx context.Context, commentID, userID int64, body string) (*Comment, error)
	DeleteComment(ctx context.Context, commentID, userID int64) error
}
