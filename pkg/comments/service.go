package comments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/projects"
)

// ProjectACL is the slice of the project service the comment service needs.
type ProjectACL interface {
	CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error)
}

// PostgresService implements the Service interface using PostgreSQL.
type PostgresService struct {
	db  *sql.DB
	acl ProjectACL
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB, projectACL ProjectACL) *PostgresService {
	return &PostgresService{db: db, acl: projectACL}
}

const commentColumns = "id, project_id, task_id, parent_id, author_id, body, created_at, updated_at, deleted_at"

// CreateComment adds a comment or reply. The task row resolves the project
// the comment belongs to, so the author is authorized against the project
// that actually owns the task. Contributors only; a reply's parent must sit
// on the same task.
func (s *PostgresService) CreateComment(ctx context.Context, req *CreateCommentRequest, authorID int64) (*Comment, error) {
	if req.Body == "" {
		return nil, fmt.Errorf("body must not be empty")
	}

	projectID, err := s.taskProject(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.acl.CheckPermission(ctx, projectID, authorID, auth.Contributors); err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		parent, err := s.getComment(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.TaskID != req.TaskID || parent.ProjectID != projectID {
			return nil, fmt.Errorf("parent comment %d on task %d: %w", parent.ID, parent.TaskID, acl.ErrConflict)
		}
	}

	c := &Comment{
		ProjectID: projectID,
		TaskID:    req.TaskID,
		ParentID:  req.ParentID,
		AuthorID:  authorID,
		Body:      req.Body,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO comments (project_id, task_id, parent_id, author_id, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, c.ProjectID, c.TaskID, c.ParentID, c.AuthorID, c.Body).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	return c, nil
}

// ListTaskComments returns a task's thread in creation order, including
// soft-deleted placeholders. Any project role may look.
func (s *PostgresService) ListTaskComments(ctx context.Context, taskID, userID int64) ([]*Comment, error) {
	projectID, err := s.taskProject(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if _, err := s.acl.CheckPermission(ctx, projectID, userID, auth.AnyRole); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE task_id = $1
		ORDER BY created_at ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var result []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.TaskID, &c.ParentID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		result = append(result, c)
	}

	return result, rows.Err()
}

// UpdateComment edits a comment body. Only the author may edit, and only
// while the comment is not deleted.
func (s *PostgresService) UpdateComment(ctx context.Context, commentID, userID int64, body string) (*Comment, error) {
	if body == "" {
		return nil, fmt.Errorf("body must not be empty")
	}

	c, err := s.getComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.DeletedAt != nil {
		return nil, fmt.Errorf("comment: %w", acl.ErrNotFound)
	}
	if c.AuthorID != userID {
		return nil, fmt.Errorf("comment %d belongs to user %d: %w", c.ID, c.AuthorID, acl.ErrForbidden)
	}
	if _, err := s.acl.CheckPermission(ctx, c.ProjectID, userID, auth.Contributors); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE comments SET body = $1, updated_at = NOW() WHERE id = $2
	`, body, commentID); err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}

	return s.getComment(ctx, commentID)
}

// DeleteComment soft-deletes. The author may delete their own comment;
// managers may delete anyone's.
func (s *PostgresService) DeleteComment(ctx context.Context, commentID, userID int64) error {
	c, err := s.getComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.DeletedAt != nil {
		return fmt.Errorf("comment: %w", acl.ErrNotFound)
	}

	allowed := auth.Managers
	if c.AuthorID == userID {
		allowed = auth.Contributors
	}
	if _, err := s.acl.CheckPermission(ctx, c.ProjectID, userID, allowed); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE comments SET body = '', deleted_at = NOW() WHERE id = $1
	`, commentID); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	return nil
}

// taskProject resolves the project a task belongs to.
func (s *PostgresService) taskProject(ctx context.Context, taskID int64) (int64, error) {
	var projectID int64
	err := s.db.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id = $1`, taskID).Scan(&projectID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("task: %w", acl.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve task: %w", err)
	}
	return projectID, nil
}

func (s *PostgresService) getComment(ctx context.Context, commentID int64) (*Comment, error) {
	c := &Comment{}
	err := s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE id = $1
	`, commentID).Scan(&c.ID, &c.ProjectID, &c.TaskID, &c.ParentID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("comment: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return c, nil
}
