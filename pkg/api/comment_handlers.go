package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/comments"
	"github.com/tracklane/tracklane/pkg/httputil"
)

// CommentHandlers handles comment HTTP requests.
type CommentHandlers struct {
	commentService comments.Service
}

// NewCommentHandlers creates a new CommentHandlers.
func NewCommentHandlers(commentService comments.Service) *CommentHandlers {
	return &CommentHandlers{
		commentService: commentService,
	}
}

// RegisterRoutes registers comment routes.
func (h *CommentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/comments", h.CreateComment).Methods("POST")
	router.HandleFunc("/comments/{id}", h.UpdateComment).Methods("PUT")
	router.HandleFunc("/comments/{id}", h.DeleteComment).Methods("DELETE")
	router.HandleFunc("/tasks/{id}/comments", h.ListTaskComments).Methods("GET")
}

// CreateComment creates a comment or a reply on a task.
func (h *CommentHandlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req comments.CreateCommentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Body, "body") {
		return
	}
	if req.TaskID == 0 {
		httputil.WriteValidationError(w, "task_id is required")
		return
	}

	comment, err := h.commentService.CreateComment(r.Context(), &req, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteCreated(w, comment)
}

// ListTaskComments lists a task's comment thread, deletion placeholders
// included.
func (h *CommentHandlers) ListTaskComments(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	list, err := h.commentService.ListTaskComments(r.Context(), taskID, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

type updateCommentRequest struct {
	Body string `json:"body"`
}

// UpdateComment edits a comment's body. Author only.
func (h *CommentHandlers) UpdateComment(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req updateCommentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Body, "body") {
		return
	}

	comment, err := h.commentService.UpdateComment(r.Context(), id, authCtx.User.ID, req.Body)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, comment)
}

// DeleteComment soft-deletes a comment.
func (h *CommentHandlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.commentService.DeleteComment(r.Context(), id, authCtx.User.ID); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
