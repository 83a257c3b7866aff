package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/workspaces"
)

// WorkspaceACL is the slice of the workspace service the project service
// needs: the workspace gate for project creation and the membership check
// for adding users.
type WorkspaceACL interface {
	CheckAccess(ctx context.Context, userID, workspaceID int64) (bool, error)
	CheckPermission(ctx context.Context, workspaceID, userID int64, allowed []auth.Role) (*workspaces.Member, error)
}

// PostgresService implements the Service interface using PostgreSQL.
type PostgresService struct {
	db         *sql.DB
	workspaces WorkspaceACL
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB, workspaceACL WorkspaceACL) *PostgresService {
	return &PostgresService{db: db, workspaces: workspaceACL}
}

// CreateProject creates the project row and then the creator's OWNER
// membership. The two inserts share one transaction, so a reader can never
// observe a project with zero members. Any workspace member may create a
// project; they become its first owner.
func (s *PostgresService) CreateProject(ctx context.Context, req *CreateProjectRequest, creatorUserID int64) (*Project, error) {
	if _, err := s.workspaces.CheckPermission(ctx, req.WorkspaceID, creatorUserID, auth.Contributors); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p := &Project{
		WorkspaceID:   req.WorkspaceID,
		Name:          req.Name,
		Description:   req.Description,
		ResponsibleID: req.ResponsibleID,
		Stage:         req.Stage,
	}
	if p.ResponsibleID == 0 {
		p.ResponsibleID = creatorUserID
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO projects (workspace_id, name, description, responsible_id, stage, sequence)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(sequence), 0) + 1 FROM projects WHERE workspace_id = $1))
		RETURNING id, sequence, created_at, updated_at
	`, p.WorkspaceID, p.Name, p.Description, p.ResponsibleID, p.Stage).
		Scan(&p.ID, &p.Sequence, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, workspace_id, user_id, role)
		VALUES ($1, $2, $3, $4)
	`, p.ID, p.WorkspaceID, creatorUserID, auth.RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to add creator as owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project creation: %w", err)
	}

	return p, nil
}

// GetProject retrieves a project by id.
func (s *PostgresService) GetProject(ctx context.Context, id int64) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, description, responsible_id, stage, sequence, created_at, updated_at
		FROM projects
		WHERE id = $1
	`, id).Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.ResponsibleID, &p.Stage, &p.Sequence, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return p, nil
}

// ListProjects lists the projects in a workspace that the user is a member
// of, in board order. Workspace membership alone shows nothing; visibility
// goes through project_members.
func (s *PostgresService) ListProjects(ctx context.Context, workspaceID, userID int64) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.workspace_id, p.name, p.description, p.responsible_id, p.stage, p.sequence, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members pm ON p.id = pm.project_id
		WHERE p.workspace_id = $1 AND pm.user_id = $2
		ORDER BY p.sequence ASC
	`, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

// UpdateProject applies partial updates to a project.
func (s *PostgresService) UpdateProject(ctx context.Context, id int64, updates *UpdateProjectRequest) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *updates.Name)
		argPos++
	}
	if updates.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *updates.Description)
		argPos++
	}
	if updates.ResponsibleID != nil {
		setClauses = append(setClauses, fmt.Sprintf("responsible_id = $%d", argPos))
		args = append(args, *updates.ResponsibleID)
		argPos++
	}
	if updates.Stage != nil {
		setClauses = append(setClauses, fmt.Sprintf("stage = $%d", argPos))
		args = append(args, *updates.Stage)
		argPos++
	}
	if updates.Sequence != nil {
		setClauses = append(setClauses, fmt.Sprintf("sequence = $%d", argPos))
		args = append(args, *updates.Sequence)
		argPos++
	}

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("project: %w", acl.ErrNotFound)
	}

	return nil
}

// DeleteProject deletes a project. Handlers gate this to owners.
func (s *PostgresService) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("project: %w", acl.ErrNotFound)
	}

	return nil
}

// ListMembers retrieves all members of a project.
func (s *PostgresService) ListMembers(ctx context.Context, projectID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, workspace_id, user_id, role, joined_at, email, display_name
		FROM project_members_view
		WHERE project_id = $1
		ORDER BY joined_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt, &m.Email, &m.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// GetMember retrieves a specific membership.
func (s *PostgresService) GetMember(ctx context.Context, projectID, userID int64) (*Member, error) {
	m := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, workspace_id, user_id, role, joined_at, email, display_name
		FROM project_members_view
		WHERE project_id = $1 AND user_id = $2
	`, projectID, userID).Scan(&m.ID, &m.ProjectID, &m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt, &m.Email, &m.DisplayName)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return m, nil
}

// AddMember adds a workspace member to the project. The actor must hold
// project owner or admin. The target must already belong to the parent
// workspace; an existing project membership yields ErrConflict.
func (s *PostgresService) AddMember(ctx context.Context, projectID, actorID, userID int64, role auth.Role) (*Member, error) {
	if _, err := s.CheckPermission(ctx, projectID, actorID, auth.Managers); err != nil {
		return nil, err
	}

	if role == "" {
		role = auth.RoleMember
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	inWorkspace, err := s.workspaces.CheckAccess(ctx, userID, p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !inWorkspace {
		return nil, fmt.Errorf("user %d in workspace %d: %w", userID, p.WorkspaceID, acl.ErrNotAMember)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, workspace_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, projectID, p.WorkspaceID, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("user %d in project %d: %w", userID, projectID, acl.ErrConflict)
	}

	return s.GetMember(ctx, projectID, userID)
}

// UpdateMemberRole changes a member's role. The actor must hold owner or
// admin. Demoting the sole owner fails with an invariant violation; the
// project row is locked first so concurrent demotions serialize instead of
// deadlocking on each other's member rows.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, projectID, actorID, targetID int64, newRole auth.Role) error {
	if !newRole.IsValid() {
		return fmt.Errorf("invalid role %q", newRole)
	}
	if _, err := s.CheckPermission(ctx, projectID, actorID, auth.Managers); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockProject(ctx, tx, projectID); err != nil {
		return err
	}

	var currentRole auth.Role
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM project_members
		WHERE project_id = $1 AND user_id = $2
		FOR UPDATE
	`, projectID, targetID).Scan(&currentRole)
	if err == sql.ErrNoRows {
		return fmt.Errorf("member: %w", acl.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}

	if currentRole == auth.RoleOwner && newRole != auth.RoleOwner {
		owners, err := lockOwnerRows(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return acl.NewLastOwnerError("project", projectID)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE project_members SET role = $1
		WHERE project_id = $2 AND user_id = $3
	`, newRole, projectID, targetID); err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	return tx.Commit()
}

// RemoveMember removes a member. Self-removal is always permitted; removing
// another user requires owner or admin. Removing the sole owner fails with
// an invariant violation under the same locking discipline as role updates:
// the project row lock comes first, so two removals touching the same
// project queue up rather than deadlock.
func (s *PostgresService) RemoveMember(ctx context.Context, projectID, actorID, targetID int64) error {
	if actorID != targetID {
		if _, err := s.CheckPermission(ctx, projectID, actorID, auth.Managers); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockProject(ctx, tx, projectID); err != nil {
		return err
	}

	var targetRole auth.Role
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM project_members
		WHERE project_id = $1 AND user_id = $2
		FOR UPDATE
	`, projectID, targetID).Scan(&targetRole)
	if err == sql.ErrNoRows {
		return fmt.Errorf("member: %w", acl.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}

	if targetRole == auth.RoleOwner {
		owners, err := lockOwnerRows(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return acl.NewLastOwnerError("project", projectID)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM project_members
		WHERE project_id = $1 AND user_id = $2
	`, projectID, targetID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	return tx.Commit()
}

// GetUserProjects returns every membership the user holds together with the
// project row. All project-scoped list queries build their IN filter from
// this result.
func (s *PostgresService) GetUserProjects(ctx context.Context, userID int64) ([]*UserProject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pm.id, pm.project_id, pm.workspace_id, pm.user_id, pm.role, pm.joined_at,
			p.id, p.workspace_id, p.name, p.description, p.responsible_id, p.stage, p.sequence, p.created_at, p.updated_at
		FROM project_members pm
		JOIN projects p ON pm.project_id = p.id
		WHERE pm.user_id = $1
		ORDER BY p.sequence ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user projects: %w", err)
	}
	defer rows.Close()

	var result []*UserProject
	for rows.Next() {
		m := &Member{}
		p := &Project{}
		if err := rows.Scan(
			&m.ID, &m.ProjectID, &m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt,
			&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.ResponsibleID, &p.Stage, &p.Sequence, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user project: %w", err)
		}
		result = append(result, &UserProject{Member: m, Project: p})
	}

	return result, rows.Err()
}

// AccessibleProjectIDs returns the ids of every project the user belongs to.
func (s *PostgresService) AccessibleProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id FROM project_members WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accessible projects: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CheckAccess reports whether any membership row exists, regardless of role.
func (s *PostgresService) CheckAccess(ctx context.Context, userID, projectID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM project_members
			WHERE project_id = $1 AND user_id = $2
		)
	`, projectID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return exists, nil
}

// CheckPermission verifies the user holds one of the allowed roles and
// returns the membership. A missing membership yields ErrNotAMember, a role
// outside the allow-list ErrForbidden. Every call is a fresh read.
func (s *PostgresService) CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*Member, error) {
	m := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, workspace_id, user_id, role, joined_at
		FROM project_members
		WHERE project_id = $1 AND user_id = $2
	`, projectID, userID).Scan(&m.ID, &m.ProjectID, &m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d in project %d: %w", userID, projectID, acl.ErrNotAMember)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check permission: %w", err)
	}

	if !auth.RolesIn(m.Role, allowed) {
		return nil, fmt.Errorf("role %s not in %v: %w", m.Role, allowed, acl.ErrForbidden)
	}

	return m, nil
}

func scanProjects(rows *sql.Rows) ([]*Project, error) {
	var result []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.ResponsibleID, &p.Stage, &p.Sequence, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// lockProject takes the project row lock every membership mutation acquires
// before touching member rows. All mutations lock in the same order, so two
// transactions on the same project never wait on each other in a cycle.
func lockProject(ctx context.Context, tx *sql.Tx, projectID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("project: %w", acl.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock project: %w", err)
	}
	return nil
}

// lockOwnerRows locks every OWNER row of the project and returns their
// count. Holding the locks until commit serializes concurrent owner-count
// checks on the same project.
func lockOwnerRows(ctx context.Context, tx *sql.Tx, projectID int64) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id FROM project_members
		WHERE project_id = $1 AND role = $2
		FOR UPDATE
	`, projectID, auth.RoleOwner)
	if err != nil {
		return 0, fmt.Errorf("failed to lock owner rows: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return 0, fmt.Errorf("failed to scan owner row: %w", err)
		}
		count++
	}

	return count, rows.Err()
}
