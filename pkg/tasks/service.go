package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/projects"
)

// ProjectACL is the slice of the project service the task service needs.
type ProjectACL interface {
	CheckAccess(ctx context.Context, userID, projectID int64) (bool, error)
	CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error)
	AccessibleProjectIDs(ctx context.Context, userID int64) ([]int64, error)
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

const taskColumns = "id, project_id, title, description, status, assignee_id, sequence, created_by, created_at, updated_at"

// CreateTask creates a task. The creator needs a contributor role; an
// assignee, when given, must be a member of the project.
func (s *PostgresService) CreateTask(ctx context.Context, req *CreateTaskRequest, creatorUserID int64) (*Task, error) {
	if _, err := s.acl.CheckPermission(ctx, req.ProjectID, creatorUserID, auth.Contributors); err != nil {
		return nil, err
	}

	if req.AssigneeID != nil {
		if err := s.requireProjectMember(ctx, req.ProjectID, *req.AssigneeID); err != nil {
			return nil, err
		}
	}

	t := &Task{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      StatusOpen,
		AssigneeID:  req.AssigneeID,
		CreatedBy:   creatorUserID,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (project_id, title, description, status, assignee_id, created_by, sequence)
		VALUES ($1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(sequence), 0) + 1 FROM tasks WHERE project_id = $1))
		RETURNING id, sequence, created_at, updated_at
	`, t.ProjectID, t.Title, t.Description, t.Status, t.AssigneeID, t.CreatedBy).
		Scan(&t.ID, &t.Sequence, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return t, nil
}

// GetTask retrieves a task visible to the user. A task in a project the user
// does not belong to is reported as not found.
func (s *PostgresService) GetTask(ctx context.Context, taskID, userID int64) (*Task, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	hasAccess, err := s.acl.CheckAccess(ctx, userID, t.ProjectID)
	if err != nil {
		return nil, err
	}
	if !hasAccess {
		return nil, fmt.Errorf("task: %w", acl.ErrNotFound)
	}

	return t, nil
}

// ListProjectTasks lists the tasks of one project in board order. Any
// project role may look.
func (s *PostgresService) ListProjectTasks(ctx context.Context, projectID, userID int64) ([]*Task, error) {
	if _, err := s.acl.CheckPermission(ctx, projectID, userID, auth.AnyRole); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = $1
		ORDER BY sequence ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ListAssignedTasks lists the user's assigned tasks across every project
// they belong to. The IN filter comes from AccessibleProjectIDs, never from
// the tasks table itself.
func (s *PostgresService) ListAssignedTasks(ctx context.Context, userID int64) ([]*Task, error) {
	projectIDs, err := s.acl.AccessibleProjectIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(projectIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE assignee_id = $1 AND project_id = ANY($2)
		ORDER BY updated_at DESC
	`, userID, pq.Array(projectIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// UpdateTask applies partial updates. Contributors may edit; a new assignee
// must be a project member.
func (s *PostgresService) UpdateTask(ctx context.Context, taskID, userID int64, updates *UpdateTaskRequest) (*Task, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.acl.CheckPermission(ctx, t.ProjectID, userID, auth.Contributors); err != nil {
		return nil, err
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argPos))
		args = append(args, *updates.Title)
		argPos++
	}
	if updates.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *updates.Description)
		argPos++
	}
	if updates.Status != nil {
		if !updates.Status.IsValid() {
			return nil, fmt.Errorf("invalid status %q", *updates.Status)
		}
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *updates.Status)
		argPos++
	}
	if updates.AssigneeID != nil {
		if *updates.AssigneeID == 0 {
			setClauses = append(setClauses, "assignee_id = NULL")
		} else {
			if err := s.requireProjectMember(ctx, t.ProjectID, *updates.AssigneeID); err != nil {
				return nil, err
			}
			setClauses = append(setClauses, fmt.Sprintf("assignee_id = $%d", argPos))
			args = append(args, *updates.AssigneeID)
			argPos++
		}
	}
	if updates.Sequence != nil {
		setClauses = append(setClauses, fmt.Sprintf("sequence = $%d", argPos))
		args = append(args, *updates.Sequence)
		argPos++
	}

	if len(setClauses) == 0 {
		return t, nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, taskID)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return s.getTask(ctx, taskID)
}

// DeleteTask deletes a task. Owner or admin only.
func (s *PostgresService) DeleteTask(ctx context.Context, taskID, userID int64) error {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.acl.CheckPermission(ctx, t.ProjectID, userID, auth.Managers); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

func (s *PostgresService) getTask(ctx context.Context, taskID int64) (*Task, error) {
	t := &Task{}
	err := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, taskID).Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.AssigneeID, &t.Sequence, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (s *PostgresService) requireProjectMember(ctx context.Context, projectID, userID int64) error {
	isMember, err := s.acl.CheckAccess(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("assignee %d in project %d: %w", userID, projectID, acl.ErrNotAMember)
	}
	return nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var result []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.AssigneeID, &t.Sequence, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
