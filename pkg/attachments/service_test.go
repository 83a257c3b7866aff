package attachments

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
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

// fakeBlobStore keeps blobs in a map.
type fakeBlobStore struct {
	objects map[string][]byte
	deleted []string
	putErr  error
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, int64, error) {
	if f.putErr != nil {
		return "", 0, f.putErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", 0, err
	}
	f.objects[key] = data
	return "checksum", int64(len(data)), nil
}

func (f *fakeBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func newMockService(t *testing.T) (*PostgresService, sqlmock.Sqlmock, *fakeBlobStore, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	blobs := &fakeBlobStore{objects: map[string][]byte{}}
	projectACL := &fakeProjectACL{roles: map[int64]map[int64]auth.Role{
		10: {7: auth.RoleAdmin},
		20: {7: auth.RoleMember},
		30: {7: auth.RoleViewer},
	}}
	return NewPostgresService(db, blobs, projectACL), mock, blobs, db
}

func attachmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "project_id", "task_id", "uploaded_by", "file_name", "content_type", "size_bytes", "checksum", "storage_key", "created_at"})
}

func TestUpload(t *testing.T) {
	t.Run("member uploads a file", func(t *testing.T) {
		service, mock, blobs, db := newMockService(t)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO attachments`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

		a, err := service.Upload(context.Background(), 7, nil, 20, "spec.pdf", "application/pdf", strings.NewReader("content"))
		require.NoError(t, err)
		assert.Equal(t, int64(7), a.SizeBytes)
		assert.Len(t, blobs.objects, 1)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("upload attached to a task of the same project", func(t *testing.T) {
		service, mock, blobs, db := newMockService(t)
		defer db.Close()
		taskID := int64(3)

		mock.ExpectQuery(`SELECT project_id FROM tasks WHERE id = \$1`).
			WithArgs(taskID).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(7))
		mock.ExpectQuery(`INSERT INTO attachments`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(2, time.Now()))

		a, err := service.Upload(context.Background(), 7, &taskID, 20, "notes.txt", "text/plain", strings.NewReader("notes"))
		require.NoError(t, err)
		require.NotNil(t, a.TaskID)
		assert.Equal(t, int64(3), *a.TaskID)
		assert.Len(t, blobs.objects, 1)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("task from another project is rejected before the blob store", func(t *testing.T) {
		service, mock, blobs, db := newMockService(t)
		defer db.Close()
		taskID := int64(9)

		mock.ExpectQuery(`SELECT project_id FROM tasks WHERE id = \$1`).
			WithArgs(taskID).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(8))

		a, err := service.Upload(context.Background(), 7, &taskID, 20, "notes.txt", "text/plain", strings.NewReader("notes"))
		require.Error(t, err)
		assert.Nil(t, a)
		assert.True(t, acl.IsNotFound(err))
		assert.Empty(t, blobs.objects)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("viewer may not upload", func(t *testing.T) {
		service, _, blobs, db := newMockService(t)
		defer db.Close()

		a, err := service.Upload(context.Background(), 7, nil, 30, "spec.pdf", "application/pdf", strings.NewReader("content"))
		require.Error(t, err)
		assert.Nil(t, a)
		assert.True(t, acl.IsForbidden(err))
		assert.Empty(t, blobs.objects)
	})

	t.Run("metadata failure removes the uploaded blob", func(t *testing.T) {
		service, mock, blobs, db := newMockService(t)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO attachments`).
			WillReturnError(fmt.Errorf("constraint violation"))

		a, err := service.Upload(context.Background(), 7, nil, 20, "spec.pdf", "application/pdf", strings.NewReader("content"))
		require.Error(t, err)
		assert.Nil(t, a)
		assert.Empty(t, blobs.objects)
		assert.Len(t, blobs.deleted, 1)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDownload(t *testing.T) {
	service, mock, blobs, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()
	blobs.objects["projects/7/key-1"] = []byte("content")

	t.Run("viewer downloads", func(t *testing.T) {
		mock.ExpectQuery(`FROM attachments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(attachmentRows().AddRow(1, 7, nil, 20, "spec.pdf", "application/pdf", 7, "checksum", "projects/7/key-1", time.Now()))

		a, body, err := service.Download(ctx, 1, 30)
		require.NoError(t, err)
		defer body.Close()
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
		assert.Equal(t, "spec.pdf", a.FileName)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-member is rejected before touching the blob store", func(t *testing.T) {
		mock.ExpectQuery(`FROM attachments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(attachmentRows().AddRow(1, 7, nil, 20, "spec.pdf", "application/pdf", 7, "checksum", "projects/7/key-1", time.Now()))

		a, body, err := service.Download(ctx, 1, 99)
		require.Error(t, err)
		assert.Nil(t, a)
		assert.Nil(t, body)
		assert.True(t, acl.IsNotAMember(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("uploader deletes own file and its blob", func(t *testing.T) {
		service, mock, blobs, db := newMockService(t)
		defer db.Close()
		blobs.objects["projects/7/key-1"] = []byte("content")

		mock.ExpectQuery(`FROM attachments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(attachmentRows().AddRow(1, 7, nil, 20, "spec.pdf", "application/pdf", 7, "checksum", "projects/7/key-1", time.Now()))
		mock.ExpectExec(`DELETE FROM attachments WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, service.Delete(ctx, 1, 20))
		assert.Empty(t, blobs.objects)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member may not delete another's file", func(t *testing.T) {
		service, mock, _, db := newMockService(t)
		defer db.Close()

		mock.ExpectQuery(`FROM attachments\s+WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(attachmentRows().AddRow(1, 7, nil, 10, "spec.pdf", "application/pdf", 7, "checksum", "projects/7/key-1", time.Now()))

		err := service.Delete(ctx, 1, 20)
		require.Error(t, err)
		assert.True(t, acl.IsForbidden(err))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}
