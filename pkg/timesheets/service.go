package timesheets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/projects"
)

// ProjectACL is the slice of the project service the timesheet service
// needs.
type ProjectACL interface {
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

const entryColumns = "id, project_id, task_id, user_id, date, hours, note, created_at, updated_at"

// LogEntry records time against a project. The user needs a contributor
// role and always logs as themselves.
func (s *PostgresService) LogEntry(ctx context.Context, req *LogEntryRequest, userID int64) (*Entry, error) {
	if _, err := s.acl.CheckPermission(ctx, req.ProjectID, userID, auth.Contributors); err != nil {
		return nil, err
	}
	if req.Hours <= 0 {
		return nil, fmt.Errorf("hours must be positive")
	}
	if req.TaskID != nil {
		if err := s.taskInProject(ctx, *req.TaskID, req.ProjectID); err != nil {
			return nil, err
		}
	}

	e := &Entry{
		ProjectID: req.ProjectID,
		TaskID:    req.TaskID,
		UserID:    userID,
		Date:      req.Date,
		Hours:     req.Hours,
		Note:      req.Note,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO timesheet_entries (project_id, task_id, user_id, date, hours, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, e.ProjectID, e.TaskID, e.UserID, e.Date, e.Hours, e.Note).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to log entry: %w", err)
	}

	return e, nil
}

// ListProjectEntries lists all entries of one project. Any project role may
// look.
func (s *PostgresService) ListProjectEntries(ctx context.Context, projectID, userID int64) ([]*Entry, error) {
	if _, err := s.acl.CheckPermission(ctx, projectID, userID, auth.AnyRole); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM timesheet_entries
		WHERE project_id = $1
		ORDER BY date DESC, id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListUserEntries lists the user's own entries in a date range across every
// project they belong to.
func (s *PostgresService) ListUserEntries(ctx context.Context, userID int64, from, to time.Time) ([]*Entry, error) {
	projectIDs, err := s.acl.AccessibleProjectIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(projectIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM timesheet_entries
		WHERE user_id = $1 AND project_id = ANY($2) AND date >= $3 AND date <= $4
		ORDER BY date DESC, id DESC
	`, userID, pq.Array(projectIDs), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list user entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// UpdateEntry applies partial updates. The author may edit their own entry;
// managers may edit any entry in the project.
func (s *PostgresService) UpdateEntry(ctx context.Context, entryID, userID int64, updates *UpdateEntryRequest) (*Entry, error) {
	e, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEntryMutation(ctx, e, userID); err != nil {
		return nil, err
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.Date != nil {
		setClauses = append(setClauses, fmt.Sprintf("date = $%d", argPos))
		args = append(args, *updates.Date)
		argPos++
	}
	if updates.Hours != nil {
		if *updates.Hours <= 0 {
			return nil, fmt.Errorf("hours must be positive")
		}
		setClauses = append(setClauses, fmt.Sprintf("hours = $%d", argPos))
		args = append(args, *updates.Hours)
		argPos++
	}
	if updates.Note != nil {
		setClauses = append(setClauses, fmt.Sprintf("note = $%d", argPos))
		args = append(args, *updates.Note)
		argPos++
	}

	if len(setClauses) == 0 {
		return e, nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, entryID)
	query := fmt.Sprintf("UPDATE timesheet_entries SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}

	return s.getEntry(ctx, entryID)
}

// DeleteEntry removes an entry under the same ownership rule as updates.
func (s *PostgresService) DeleteEntry(ctx context.Context, entryID, userID int64) error {
	e, err := s.getEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if err := s.authorizeEntryMutation(ctx, e, userID); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM timesheet_entries WHERE id = $1`, entryID); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	return nil
}

// authorizeEntryMutation allows the author with any contributor role, and
// project managers for entries of others.
func (s *PostgresService) authorizeEntryMutation(ctx context.Context, e *Entry, userID int64) error {
	if e.UserID == userID {
		_, err := s.acl.CheckPermission(ctx, e.ProjectID, userID, auth.Contributors)
		return err
	}
	_, err := s.acl.CheckPermission(ctx, e.ProjectID, userID, auth.Managers)
	return err
}

// taskInProject verifies a referenced task belongs to the project the time
// is logged against. A task elsewhere looks the same as no task at all.
func (s *PostgresService) taskInProject(ctx context.Context, taskID, projectID int64) error {
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id = $1`, taskID).Scan(&owner)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task: %w", acl.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve task: %w", err)
	}
	if owner != projectID {
		return fmt.Errorf("task %d in project %d: %w", taskID, projectID, acl.ErrNotFound)
	}
	return nil
}

func (s *PostgresService) getEntry(ctx context.Context, entryID int64) (*Entry, error) {
	e := &Entry{}
	err := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM timesheet_entries
		WHERE id = $1
	`, entryID).Scan(&e.ID, &e.ProjectID, &e.TaskID, &e.UserID, &e.Date, &e.Hours, &e.Note, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.TaskID, &e.UserID, &e.Date, &e.Hours, &e.Note, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
