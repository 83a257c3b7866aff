package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/attachments"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/httputil"
)

// maxUploadBytes caps a single attachment upload.
const maxUploadBytes = 64 << 20

// AttachmentHandlers handles attachment HTTP requests.
type AttachmentHandlers struct {
	attachmentService attachments.Service
}

// NewAttachmentHandlers creates a new AttachmentHandlers.
func NewAttachmentHandlers(attachmentService attachments.Service) *AttachmentHandlers {
	return &AttachmentHandlers{
		attachmentService: attachmentService,
	}
}

// RegisterRoutes registers attachment routes.
func (h *AttachmentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects/{id}/attachments", h.Upload).Methods("POST")
	router.HandleFunc("/projects/{id}/attachments", h.ListProjectAttachments).Methods("GET")
	router.HandleFunc("/attachments/{id}", h.Download).Methods("GET")
	router.HandleFunc("/attachments/{id}", h.Delete).Methods("DELETE")
}

// Upload accepts a multipart file upload under the "file" field. An optional
// "task_id" field binds the attachment to a task.
func (h *AttachmentHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteValidationError(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	var taskID *int64
	if raw := r.FormValue("task_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "task_id must be an integer")
			return
		}
		taskID = &parsed
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment, err := h.attachmentService.Upload(r.Context(), projectID, taskID, authCtx.User.ID, header.Filename, contentType, file)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteCreated(w, attachment)
}

// ListProjectAttachments lists a project's attachment metadata.
func (h *AttachmentHandlers) ListProjectAttachments(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	list, err := h.attachmentService.ListProjectAttachments(r.Context(), projectID, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// Download streams attachment content with its stored content type.
func (h *AttachmentHandlers) Download(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	attachment, content, err := h.attachmentService.Download(r.Context(), id, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.FileName))
	if attachment.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(attachment.SizeBytes, 10))
	}
	io.Copy(w, content)
}

// Delete removes an attachment and its stored content.
func (h *AttachmentHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.attachmentService.Delete(r.Context(), id, authCtx.User.ID); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
