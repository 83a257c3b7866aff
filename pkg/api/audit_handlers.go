package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/audit"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/httputil"
)

// recordAuditEvent writes best-effort; mutation outcomes never depend on the
// audit sink.
func recordAuditEvent(r *http.Request, recorder audit.Recorder, event *audit.Event) {
	if recorder == nil {
		return
	}
	_ = recorder.Record(r.Context(), event)
}

// AuditHandlers exposes audit trails for workspaces and projects.
type AuditHandlers struct {
	recorder audit.Recorder
	gate     PermissionGate
}

// NewAuditHandlers creates a new AuditHandlers.
func NewAuditHandlers(recorder audit.Recorder, permissionGate PermissionGate) *AuditHandlers {
	return &AuditHandlers{
		recorder: recorder,
		gate:     permissionGate,
	}
}

// RegisterRoutes registers audit routes.
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/workspaces/{id}/audit", h.ListWorkspaceEvents).Methods("GET")
	router.HandleFunc("/projects/{id}/audit", h.ListProjectEvents).Methods("GET")
}

// ListWorkspaceEvents lists a workspace's audit trail. Requires owner or
// admin.
func (h *AuditHandlers) ListWorkspaceEvents(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.gate.CheckWorkspacePermission(r.Context(), id, authCtx.User.ID, auth.Managers); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	h.listEvents(w, r, "workspace", id)
}

// ListProjectEvents lists a project's audit trail. Requires owner or admin.
func (h *AuditHandlers) ListProjectEvents(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.gate.CheckProjectPermission(r.Context(), id, authCtx.User.ID, auth.Managers); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	h.listEvents(w, r, "project", id)
}

func (h *AuditHandlers) listEvents(w http.ResponseWriter, r *http.Request, scope string, resourceID int64) {
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		httputil.WriteValidationError(w, "limit must be a non-negative integer")
		return
	}

	events, err := h.recorder.ListResourceEvents(r.Context(), scope, resourceID, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, events)
}
