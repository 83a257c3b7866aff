package workspaces

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/users"
)

// PostgresService implements the Service interface using PostgreSQL.
type PostgresService struct {
	db    *sql.DB
	users users.Store
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB, userStore users.Store) *PostgresService {
	return &PostgresService{db: db, users: userStore}
}

// CreateWorkspace creates the workspace row and the creator's OWNER
// membership in one transaction; a reader can never observe a workspace
// without an owner.
func (s *PostgresService) CreateWorkspace(ctx context.Context, req *CreateWorkspaceRequest, creatorUserID int64) (*Workspace, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ws := &Workspace{Name: req.Name, Description: req.Description}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, ws.Name, ws.Description).Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
	`, ws.ID, creatorUserID, auth.RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to add creator as owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit workspace creation: %w", err)
	}

	return ws, nil
}

// GetWorkspace retrieves a workspace by id.
func (s *PostgresService) GetWorkspace(ctx context.Context, id int64) (*Workspace, error) {
	ws := &Workspace{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`, id).Scan(&ws.ID, &ws.Name, &ws.Description, &ws.CreatedAt, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workspace: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return ws, nil
}

// ListWorkspaces lists the workspaces a user belongs to. Visibility always
// goes through the membership join, never a raw scan.
func (s *PostgresService) ListWorkspaces(ctx context.Context, userID int64) ([]*Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.description, w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_members wm ON w.id = wm.workspace_id
		WHERE wm.user_id = $1
		ORDER BY w.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var result []*Workspace
	for rows.Next() {
		ws := &Workspace{}
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		result = append(result, ws)
	}

	return result, rows.Err()
}

// UpdateWorkspace applies partial updates to a workspace.
func (s *PostgresService) UpdateWorkspace(ctx context.Context, id int64, updates *UpdateWorkspaceRequest) error {
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

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE workspaces SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("workspace: %w", acl.ErrNotFound)
	}

	return nil
}

// DeleteWorkspace deletes a workspace. Handlers gate this to owners.
func (s *PostgresService) DeleteWorkspace(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("workspace: %w", acl.ErrNotFound)
	}

	return nil
}

// ListMembers retrieves all members of a workspace.
func (s *PostgresService) ListMembers(ctx context.Context, workspaceID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, user_id, role, joined_at, email, display_name
		FROM workspace_members_view
		WHERE workspace_id = $1
		ORDER BY joined_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt, &m.Email, &m.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// GetMember retrieves a specific membership.
func (s *PostgresService) GetMember(ctx context.Context, workspaceID, userID int64) (*Member, error) {
	m := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, user_id, role, joined_at, email, display_name
		FROM workspace_members_view
		WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID).Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt, &m.Email, &m.DisplayName)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return m, nil
}

// InviteUser resolves email to a user and adds them as a member. The inviter
// must hold owner or admin. Unknown email yields ErrNotFound, an existing
// membership ErrConflict.
func (s *PostgresService) InviteUser(ctx context.Context, workspaceID, inviterID int64, email string, role auth.Role) (*Member, error) {
	if _, err := s.CheckPermission(ctx, workspaceID, inviterID, auth.Managers); err != nil {
		return nil, err
	}

	if role == "" {
		role = auth.RoleMember
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, workspaceID, user.ID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("user %d in workspace %d: %w", user.ID, workspaceID, acl.ErrConflict)
	}

	return s.GetMember(ctx, workspaceID, user.ID)
}

// UpdateMemberRole changes a member's role. The actor must hold owner or
// admin. Demoting the sole owner fails with an invariant violation; the
// workspace row is locked first, so two concurrent demotions serialize and
// cannot both pass the count check.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, workspaceID, actorID, targetID int64, newRole auth.Role) error {
	if !newRole.IsValid() {
		return fmt.Errorf("invalid role %q", newRole)
	}
	if _, err := s.CheckPermission(ctx, workspaceID, actorID, auth.Managers); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockWorkspace(ctx, tx, workspaceID); err != nil {
		return err
	}

	var currentRole auth.Role
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2
		FOR UPDATE
	`, workspaceID, targetID).Scan(&currentRole)
	if err == sql.ErrNoRows {
		return fmt.Errorf("member: %w", acl.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}

	if currentRole == auth.RoleOwner && newRole != auth.RoleOwner {
		owners, err := lockOwnerRows(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return acl.NewLastOwnerError("workspace", workspaceID)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workspace_members SET role = $1
		WHERE workspace_id = $2 AND user_id = $3
	`, newRole, workspaceID, targetID); err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	return tx.Commit()
}

// RemoveMember removes a member. Self-removal is always permitted; removing
// another user requires owner or admin. Removing the sole owner fails with
// an invariant violation under the same locking discipline as role updates.
func (s *PostgresService) RemoveMember(ctx context.Context, workspaceID, actorID, targetID int64) error {
	if actorID != targetID {
		if _, err := s.CheckPermission(ctx, workspaceID, actorID, auth.Managers); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockWorkspace(ctx, tx, workspaceID); err != nil {
		return err
	}

	var targetRole auth.Role
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2
		FOR UPDATE
	`, workspaceID, targetID).Scan(&targetRole)
	if err == sql.ErrNoRows {
		return fmt.Errorf("member: %w", acl.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}

	if targetRole == auth.RoleOwner {
		owners, err := lockOwnerRows(ctx, tx, workspaceID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return acl.NewLastOwnerError("workspace", workspaceID)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, targetID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	return tx.Commit()
}

// CheckAccess reports whether any membership row exists, regardless of role.
func (s *PostgresService) CheckAccess(ctx context.Context, userID, workspaceID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM workspace_members
			WHERE workspace_id = $1 AND user_id = $2
		)
	`, workspaceID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return exists, nil
}

// CheckPermission verifies the user holds one of the allowed roles and
// returns the membership, so callers get the gate and the data in one query.
// A missing membership yields ErrNotAMember, a role outside the allow-list
// ErrForbidden. Every call is a fresh read; membership changes are visible
// immediately.
func (s *PostgresService) CheckPermission(ctx context.Context, workspaceID, userID int64, allowed []auth.Role) (*Member, error) {
	m := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID).Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d in workspace %d: %w", userID, workspaceID, acl.ErrNotAMember)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check permission: %w", err)
	}

	if !auth.RolesIn(m.Role, allowed) {
		return nil, fmt.Errorf("role %s not in %v: %w", m.Role, allowed, acl.ErrForbidden)
	}

	return m, nil
}

// lockWorkspace takes the workspace row lock every membership mutation
// acquires before touching member rows. All mutations lock in the same
// order, so two transactions on the same workspace never wait on each other
// in a cycle.
func lockWorkspace(ctx context.Context, tx *sql.Tx, workspaceID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM workspaces WHERE id = $1 FOR UPDATE`, workspaceID).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("workspace: %w", acl.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	return nil
}

// lockOwnerRows locks every OWNER row of the workspace and returns their
// count. Holding the locks until commit serializes concurrent owner-count
// checks on the same workspace.
func lockOwnerRows(ctx context.Context, tx *sql.Tx, workspaceID int64) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id FROM workspace_members
		WHERE workspace_id = $1 AND role = $2
		FOR UPDATE
	`, workspaceID, auth.RoleOwner)
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
