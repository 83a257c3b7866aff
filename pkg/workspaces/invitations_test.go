package workspaces

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
)

func TestCreateInvitation(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("owner invites with defaults filled in", func(t *testing.T) {
		expectPermissionCheck(mock, 1, 10, auth.RoleOwner)
		mock.ExpectQuery(`INSERT INTO workspace_invitations`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		inv := &Invitation{WorkspaceID: 1, InvitedBy: 10, Email: "new@example.com"}
		err := service.CreateInvitation(ctx, inv)
		require.NoError(t, err)
		assert.Equal(t, int64(5), inv.ID)
		assert.Equal(t, auth.RoleMember, inv.Role)
		assert.NotEmpty(t, inv.Token)
		assert.True(t, inv.ExpiresAt.After(inv.InvitedAt))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member may not invite", func(t *testing.T) {
		expectPermissionCheck(mock, 1, 30, auth.RoleMember)

		err := service.CreateInvitation(ctx, &Invitation{WorkspaceID: 1, InvitedBy: 30, Email: "new@example.com"})
		require.Error(t, err)
		assert.True(t, acl.IsForbidden(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAcceptInvitation(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	selectQuery := `SELECT id, workspace_id, role, expires_at, accepted_at\s+FROM workspace_invitations\s+WHERE token = \$1\s+FOR UPDATE`

	t.Run("valid token adds the member and marks the invitation", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(selectQuery).
			WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "role", "expires_at", "accepted_at"}).
				AddRow(5, 1, auth.RoleMember, time.Now().Add(time.Hour), nil))
		mock.ExpectExec(`INSERT INTO workspace_members`).
			WithArgs(int64(1), int64(20), auth.RoleMember).
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectExec(`UPDATE workspace_invitations SET accepted_at`).
			WithArgs(int64(20), int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		workspaceID, err := service.AcceptInvitation(ctx, "tok-1", 20)
		require.NoError(t, err)
		assert.Equal(t, int64(1), workspaceID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(selectQuery).
			WithArgs("tok-missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.AcceptInvitation(ctx, "tok-missing", 20)
		require.Error(t, err)
		assert.True(t, acl.IsNotFound(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already accepted", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(selectQuery).
			WithArgs("tok-2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "role", "expires_at", "accepted_at"}).
				AddRow(6, 1, auth.RoleMember, time.Now().Add(time.Hour), time.Now()))
		mock.ExpectRollback()

		_, err := service.AcceptInvitation(ctx, "tok-2", 20)
		require.Error(t, err)
		assert.True(t, acl.IsConflict(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(selectQuery).
			WithArgs("tok-3").
			WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "role", "expires_at", "accepted_at"}).
				AddRow(7, 1, auth.RoleMember, time.Now().Add(-time.Hour), nil))
		mock.ExpectRollback()

		_, err := service.AcceptInvitation(ctx, "tok-3", 20)
		require.Error(t, err)
		assert.True(t, acl.IsNotFound(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("accepting user already a member", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(selectQuery).
			WithArgs("tok-4").
			WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "role", "expires_at", "accepted_at"}).
				AddRow(8, 1, auth.RoleMember, time.Now().Add(time.Hour), nil))
		mock.ExpectExec(`INSERT INTO workspace_members`).
			WithArgs(int64(1), int64(20), auth.RoleMember).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.AcceptInvitation(ctx, "tok-4", 20)
		require.Error(t, err)
		assert.True(t, acl.IsConflict(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRevokeInvitation(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("pending invitation is deleted", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM workspace_invitations WHERE id = \$1 AND workspace_id = \$2 AND accepted_at IS NULL`).
			WithArgs(int64(5), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, service.RevokeInvitation(ctx, 1, 5))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("accepted or unknown invitation", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM workspace_invitations`).
			WithArgs(int64(6), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.RevokeInvitation(ctx, 1, 6)
		require.Error(t, err)
		assert.True(t, acl.IsNotFound(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invitation of another workspace is out of reach", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM workspace_invitations WHERE id = \$1 AND workspace_id = \$2 AND accepted_at IS NULL`).
			WithArgs(int64(5), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.RevokeInvitation(ctx, 2, 5)
		require.Error(t, err)
		assert.True(t, acl.IsNotFound(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCleanupExpiredInvitations(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM workspace_invitations WHERE expires_at < NOW\(\) AND accepted_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, service.CleanupExpiredInvitations(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
