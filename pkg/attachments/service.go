package attachments

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/projects"
)

// Attachment is the metadata row for one stored file.
type Attachment struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	TaskID      *int64    `json:"task_id,omitempty"`
	UploadedBy  int64     `json:"uploaded_by"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum"`
	StorageKey  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectACL is the slice of the project service the attachment service
// needs.
type ProjectACL interface {
	CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error)
}

// Service defines attachment management.
type Service interface {
	Upload(ctx context.Context, projectID int64, taskID *int64, userID int64, fileName, contentType string, content io.Reader) (*Attachment, error)
	Download(ctx context.Context, attachmentID, userID int64) (*Attachment, io.ReadCloser, error)
	ListProjectAttachments(ctx context.Context, projectID, userID int64) ([]*Attachment, error)
	Delete(ctx context.Context, attachmentID, userID int64) error
}

// PostgresService implements Service with PostgreSQL metadata and a
// BlobStore for content.
type PostgresService struct {
	db    *sql.DB
	blobs BlobStore
	acl   ProjectACL
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB, blobs BlobStore, projectACL ProjectACL) *PostgresService {
	return &PostgresService{db: db, blobs: blobs, acl: projectACL}
}

const attachmentColumns = "id, project_id, task_id, uploaded_by, file_name, content_type, size_bytes, checksum, storage_key, created_at"

// Upload stores content under a fresh key, then writes the metadata row.
// The blob is removed again if the row cannot be written, so no orphan
// survives a failed upload.
func (s *PostgresService) Upload(ctx context.Context, projectID int64, taskID *int64, userID int64, fileName, contentType string, content io.Reader) (*Attachment, error) {
	if _, err := s.acl.CheckPermission(ctx, projectID, userID, auth.Contributors); err != nil {
		return nil, err
	}
	if fileName == "" {
		return nil, fmt.Errorf("file name must not be empty")
	}
	if taskID != nil {
		if err := s.taskInProject(ctx, *taskID, projectID); err != nil {
			return nil, err
		}
	}

	key := fmt.Sprintf("projects/%d/%s", projectID, uuid.NewString())
	checksum, size, err := s.blobs.Put(ctx, key, content, contentType)
	if err != nil {
		return nil, err
	}

	a := &Attachment{
		ProjectID:   projectID,
		TaskID:      taskID,
		UploadedBy:  userID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   size,
		Checksum:    checksum,
		StorageKey:  key,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (project_id, task_id, uploaded_by, file_name, content_type, size_bytes, checksum, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, a.ProjectID, a.TaskID, a.UploadedBy, a.FileName, a.ContentType, a.SizeBytes, a.Checksum, a.StorageKey).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		_ = s.blobs.Delete(ctx, key)
		return nil, fmt.Errorf("failed to create attachment: %w", err)
	}

	return a, nil
}

// Download returns metadata and a reader for the content. Any project role
// may download.
func (s *PostgresService) Download(ctx context.Context, attachmentID, userID int64) (*Attachment, io.ReadCloser, error) {
	a, err := s.getAttachment(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.acl.CheckPermission(ctx, a.ProjectID, userID, auth.AnyRole); err != nil {
		return nil, nil, err
	}

	body, err := s.blobs.Get(ctx, a.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return a, body, nil
}

// ListProjectAttachments lists metadata for one project.
func (s *PostgresService) ListProjectAttachments(ctx context.Context, projectID, userID int64) ([]*Attachment, error) {
	if _, err := s.acl.CheckPermission(ctx, projectID, userID, auth.AnyRole); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments
		WHERE project_id = $1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var result []*Attachment
	for rows.Next() {
		a := &Attachment{}
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.TaskID, &a.UploadedBy, &a.FileName, &a.ContentType, &a.SizeBytes, &a.Checksum, &a.StorageKey, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

// Delete removes the metadata row first, then the blob. The uploader may
// delete their own file; managers may delete anyone's.
func (s *PostgresService) Delete(ctx context.Context, attachmentID, userID int64) error {
	a, err := s.getAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}

	allowed := auth.Managers
	if a.UploadedBy == userID {
		allowed = auth.Contributors
	}
	if _, err := s.acl.CheckPermission(ctx, a.ProjectID, userID, allowed); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, attachmentID); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}

	return s.blobs.Delete(ctx, a.StorageKey)
}

// taskInProject verifies a referenced task belongs to the project the file
// is uploaded to. A task elsewhere looks the same as no task at all.
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

func (s *PostgresService) getAttachment(ctx context.Context, attachmentID int64) (*Attachment, error) {
	a := &Attachment{}
	err := s.db.QueryRowContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments
		WHERE id = $1
	`, attachmentID).Scan(&a.ID, &a.ProjectID, &a.TaskID, &a.UploadedBy, &a.FileName, &a.ContentType, &a.SizeBytes, &a.Checksum, &a.StorageKey, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attachment: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a, nil
}
