package workspaces

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
)

const invitationTTL = 7 * 24 * time.Hour

// CreateInvitation creates a pending invitation. Re-inviting the same email
// refreshes the token and expiry.
func (s *PostgresService) CreateInvitation(ctx context.Context, inv *Invitation) error {
	if _, err := s.CheckPermission(ctx, inv.WorkspaceID, inv.InvitedBy, auth.Managers); err != nil {
		return err
	}

	inv.Token = uuid.NewString()
	if inv.Role == "" {
		inv.Role = auth.RoleMember
	}
	if inv.InvitedAt.IsZero() {
		inv.InvitedAt = time.Now()
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = inv.InvitedAt.Add(invitationTTL)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workspace_invitations (workspace_id, email, role, token, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workspace_id, email) DO UPDATE
		SET token = EXCLUDED.token, invited_at = EXCLUDED.invited_at, expires_at = EXCLUDED.expires_at
		RETURNING id
	`, inv.WorkspaceID, inv.Email, inv.Role, inv.Token, inv.InvitedBy, inv.InvitedAt, inv.ExpiresAt).
		Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// AcceptInvitation redeems a token and adds the accepting user as a member.
// The invitation row is locked so a token can only be redeemed once.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id          int64
		workspaceID int64
		role        auth.Role
		expiresAt   time.Time
		acceptedAt  sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, workspace_id, role, expires_at, accepted_at
		FROM workspace_invitations
		WHERE token = $1
		FOR UPDATE
	`, token).Scan(&id, &workspaceID, &role, &expiresAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("invitation: %w", acl.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		return 0, fmt.Errorf("invitation already accepted: %w", acl.ErrConflict)
	}
	if time.Now().After(expiresAt) {
		return 0, fmt.Errorf("invitation expired: %w", acl.ErrNotFound)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, workspaceID, userID, role)
	if err != nil {
		return 0, fmt.Errorf("failed to add member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, fmt.Errorf("user %d in workspace %d: %w", userID, workspaceID, acl.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workspace_invitations SET accepted_at = NOW(), accepted_by = $1 WHERE id = $2
	`, userID, id); err != nil {
		return 0, fmt.Errorf("failed to update invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return workspaceID, nil
}

// RevokeInvitation deletes a pending invitation. The delete is scoped to
// the workspace the caller was authorized against, so an invitation id from
// another workspace comes back as not found.
func (s *PostgresService) RevokeInvitation(ctx context.Context, workspaceID, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM workspace_invitations WHERE id = $1 AND workspace_id = $2 AND accepted_at IS NULL
	`, id, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("pending invitation: %w", acl.ErrNotFound)
	}

	return nil
}

// ListInvitations lists pending invitations for a workspace.
func (s *PostgresService) ListInvitations(ctx context.Context, workspaceID int64) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, email, role, token, invited_by, invited_at, expires_at, accepted_at, accepted_by
		FROM workspace_invitations
		WHERE workspace_id = $1 AND accepted_at IS NULL
		ORDER BY invited_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(
			&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role, &inv.Token,
			&inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt, &inv.AcceptedAt, &inv.AcceptedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

// CleanupExpiredInvitations removes expired, unaccepted invitations. Run on
// a schedule by the server binary.
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM workspace_invitations WHERE expires_at < NOW() AND accepted_at IS NULL
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	return nil
}
