package comments

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/projects"
)

type fakeProjectACL struct {
	roles map[int64]map[int64]auth.Role
}

func (f *fakeProjectACL) CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error) {
	role, ok := f.roles[userID][projectID]
	if !ok {
		return nil, fmt.Errorf("user %d in project %d: %w", userID, projectID, acl.ErrNotAMember)
	}
	if !auth.RolesIn(role, allowed) {
		return nil, fmt.Errorf("role %s: %w", role, acl.ErrForbidden)
	}
	return &projects.Member{ProjectID: projectID, UserID: userID, Role: role}, nil
}

func newMockService(t *testing.T) (*PostgresService, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	projectACL := &fakeProjectACL{roles: map[int64]map[int64]auth.Role{
		10: {7: auth.RoleAdmin},
		20: {7: auth.RoleMember},
		30: {7: auth.RoleViewer},
	}}
	return NewPostgresService(db, projectACL), mock, db
}

func commentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "project_id", "task_id", "parent_id", "author_id", "body", "created_at", "updated_at", "deleted_at"})
}

func TestCreateComment(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	taskQuery := `SELECT project_id FROM tasks WHERE id = \$1`

	t.Run("member comments on a task", func(t *testing.T) {
		mock.ExpectQuery(taskQuery).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(7))
		mock.ExpectQuery(`INSERT INTO comments`).
			WithArgs(int64(7), int64(3), nil, int64(20), "looks good").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

		c, err := service.CreateComment(ctx, &CreateCommentRequest{TaskID: 3, Body: "looks good"}, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(20), c.AuthorID)
		assert.Equal(t, int64(7), c.ProjectID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reply to a parent on the same task", func(t *testing.T) {
		parentID := int64(1)
		mock.ExpectQuery(taskQuery).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(7))
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(parentID).
			WillReturnRows(commentRows().AddRow(1, 7, 3, nil, 20, "looks good", now, now, nil))
		mock.ExpectQuery(`INSERT INTO comments`).
			WithArgs(int64(7), int64(3), &parentID, int64(10), "agreed").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(2, now, now))

		c, err := service.CreateComment(ctx, &CreateCommentRequest{TaskID: 3, ParentID: &parentID, Body: "agreed"}, 10)
		require.NoError(t, err)
		require.NotNil(t, c.ParentID)
		assert.Equal(t, int64(1), *c.ParentID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reply across tasks rejected", func(t *testing.T) {
		parentID := int64(1)
		mock.ExpectQuery(taskQuery).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(7))
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(parentID).
			WillReturnRows(commentRows().AddRow(1, 7, 4, nil, 20, "elsewhere", now, now, nil))

		c, err := service.CreateComment(ctx, &CreateCommentRequest{TaskID: 3, ParentID: &parentID, Body: "agreed"}, 10)
		require.Error(t, err)
		assert.Nil(t, c)
		assert.True(t, acl.IsConflict(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("viewer may not comment", func(t *testing.T) {
		mock.ExpectQuery(taskQuery).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(7))

		c, err := service.CreateComment(ctx, &CreateCommentRequest{TaskID: 3, Body: "hi"}, 30)
		require.Error(t, err)
		assert.Nil(t, c)
		assert.True(t, acl.IsForbidden(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("task in a project the author does not belong to", func(t *testing.T) {
		mock.ExpectQuery(taskQuery).
			WithArgs(int64(9)).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(8))

		c, err := service.CreateComment(ctx, &CreateCommentRequest{TaskID: 9, Body: "hello from outside"}, 20)
		require.Error(t, err)
		assert.Nil(t, c)
		assert.True(t, acl.IsNotAMember(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown task", func(t *testing.T) {
		mock.ExpectQuery(taskQuery).
			WithArgs(int64(404)).
			WillReturnError(sql.ErrNoRows)

		c, err := service.CreateComment(ctx, &CreateCommentRequest{TaskID: 404, Body: "hi"}, 20)
		require.Error(t, err)
		assert.Nil(t, c)
		assert.True(t, acl.IsNotFound(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListTaskComments(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	t.Run("viewer reads the thread", func(t *testing.T) {
		mock.ExpectQuery(`SELECT project_id FROM tasks WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(7))
		mock.ExpectQuery(`FROM comments\s+WHERE task_id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(commentRows().
				AddRow(1, 7, 3, nil, 20, "looks good", now, now, nil).
				AddRow(2, 7, 3, 1, 10, "agreed", now, now, nil))

		thread, err := service.ListTaskComments(ctx, 3, 30)
		require.NoError(t, err)
		require.Len(t, thread, 2)
		assert.Nil(t, thread[0].ParentID)
		require.NotNil(t, thread[1].ParentID)
		assert.Equal(t, int64(1), *thread[1].ParentID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-member is rejected", func(t *testing.T) {
		mock.ExpectQuery(`SELECT project_id FROM tasks WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(7))

		thread, err := service.ListTaskComments(ctx, 3, 99)
		require.Error(t, err)
		assert.Nil(t, thread)
		assert.True(t, acl.IsNotAMember(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateComment(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	t.Run("author edits own comment", func(t *testing.T) {
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(commentRows().AddRow(1, 7, 3, nil, 20, "looks good", now, now, nil))
		mock.ExpectExec(`UPDATE comments SET body = \$1, updated_at = NOW\(\) WHERE id = \$2`).
			WithArgs("looks great", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(commentRows().AddRow(1, 7, 3, nil, 20, "looks great", now, now, nil))

		c, err := service.UpdateComment(ctx, 1, 20, "looks great")
		require.NoError(t, err)
		assert.Equal(t, "looks great", c.Body)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("even an admin may not edit another author's comment", func(t *testing.T) {
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(commentRows().AddRow(1, 7, 3, nil, 20, "looks good", now, now, nil))

		c, err := service.UpdateComment(ctx, 1, 10, "rewritten")
		require.Error(t, err)
		assert.Nil(t, c)
		assert.True(t, acl.IsForbidden(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteComment(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	t.Run("author soft-deletes own comment", func(t *testing.T) {
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(commentRows().AddRow(1, 7, 3, nil, 20, "looks good", now, now, nil))
		mock.ExpectExec(`UPDATE comments SET body = '', deleted_at = NOW\(\) WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, service.DeleteComment(ctx, 1, 20))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin deletes another author's comment", func(t *testing.T) {
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(commentRows().AddRow(1, 7, 3, nil, 20, "spam", now, now, nil))
		mock.ExpectExec(`UPDATE comments SET body = '', deleted_at = NOW\(\) WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, service.DeleteComment(ctx, 1, 10))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member may not delete another author's comment", func(t *testing.T) {
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(commentRows().AddRow(1, 7, 3, nil, 10, "admin note", now, now, nil))

		err := service.DeleteComment(ctx, 1, 20)
		require.Error(t, err)
		assert.True(t, acl.IsForbidden(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleting twice reads as not found", func(t *testing.T) {
		deleted := now
		mock.ExpectQuery(`FROM comments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(commentRows().AddRow(1, 7, 3, nil, 20, "", now, now, &deleted))

		err := service.DeleteComment(ctx, 1, 20)
		require.Error(t, err)
		assert.True(t, acl.IsNotFound(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}
