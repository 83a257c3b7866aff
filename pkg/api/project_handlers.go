package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/audit"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/httputil"
	"github.com/tracklane/tracklane/pkg/projects"
)

// ProjectHandlers handles project and project-membership HTTP requests.
// Route-level role checks go through the permission gate; the service
// enforces the rest.
type ProjectHandlers struct {
	projectService projects.Service
	gate           PermissionGate
	recorder       audit.Recorder
}

// NewProjectHandlers creates a new ProjectHandlers. The recorder may be nil
// when auditing is disabled.
func NewProjectHandlers(projectService projects.Service, permissionGate PermissionGate, recorder audit.Recorder) *ProjectHandlers {
	return &ProjectHandlers{
		projectService: projectService,
		gate:           permissionGate,
		recorder:       recorder,
	}
}

// RegisterRoutes registers project routes.
func (h *ProjectHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects", h.CreateProject).Methods("POST")
	router.HandleFunc("/projects", h.ListUserProjects).Methods("GET")
	router.HandleFunc("/workspaces/{id}/projects", h.ListWorkspaceProjects).Methods("GET")
	router.HandleFunc("/projects/{id}", h.GetProject).Methods("GET")
	router.HandleFunc("/projects/{id}", h.UpdateProject).Methods("PUT")
	router.HandleFunc("/projects/{id}", h.DeleteProject).Methods("DELETE")

	// Members
	router.HandleFunc("/projects/{id}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/projects/{id}/members", h.AddMember).Methods("POST")
	router.HandleFunc("/projects/{id}/members/{user_id}", h.UpdateMemberRole).Methods("PUT")
	router.HandleFunc("/projects/{id}/members/{user_id}", h.RemoveMember).Methods("DELETE")
}

// CreateProject creates a project with the caller as its first owner.
func (h *ProjectHandlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req projects.CreateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if req.WorkspaceID == 0 {
		httputil.WriteValidationError(w, "workspace_id is required")
		return
	}

	project, err := h.projectService.CreateProject(r.Context(), &req, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventProjectCreated, ActorID: authCtx.User.ID,
		Scope: "project", ResourceID: project.ID,
	})
	httputil.WriteCreated(w, project)
}

// ListUserProjects lists the caller's project memberships with their
// projects.
func (h *ProjectHandlers) ListUserProjects(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	list, err := h.projectService.GetUserProjects(r.Context(), authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// ListWorkspaceProjects lists the caller's projects inside one workspace.
func (h *ProjectHandlers) ListWorkspaceProjects(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	list, err := h.projectService.ListProjects(r.Context(), workspaceID, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// GetProject retrieves a project. Non-members get a 404 so project ids do
// not leak.
func (h *ProjectHandlers) GetProject(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	hasAccess, err := h.gate.CheckProjectAccess(r.Context(), authCtx.User.ID, id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !hasAccess {
		httputil.WriteNotFoundError(w, "project not found")
		return
	}

	project, err := h.projectService.GetProject(r.Context(), id)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, project)
}

// UpdateProject applies partial updates. Requires owner or admin.
func (h *ProjectHandlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req projects.UpdateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if _, err := h.gate.CheckProjectPermission(r.Context(), id, authCtx.User.ID, auth.Managers); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	if err := h.projectService.UpdateProject(r.Context(), id, &req); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// DeleteProject deletes a project. Owner only.
func (h *ProjectHandlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.gate.CheckProjectPermission(r.Context(), id, authCtx.User.ID, auth.OwnerOnly); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	if err := h.projectService.DeleteProject(r.Context(), id); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListMembers lists project members. Any member may look.
func (h *ProjectHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.gate.CheckProjectPermission(r.Context(), id, authCtx.User.ID, auth.AnyRole); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	members, err := h.projectService.ListMembers(r.Context(), id)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, members)
}

type addMemberRequest struct {
	UserID int64     `json:"user_id"`
	Role   auth.Role `json:"role,omitempty"`
}

// AddMember adds a workspace member to the project.
func (h *ProjectHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req addMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		httputil.WriteValidationError(w, "user_id is required")
		return
	}

	member, err := h.projectService.AddMember(r.Context(), id, authCtx.User.ID, req.UserID, req.Role)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventMemberAdded, ActorID: authCtx.User.ID,
		Scope: "project", ResourceID: id,
		Details: map[string]string{"target": strconv.FormatInt(member.UserID, 10), "role": string(member.Role)},
	})
	httputil.WriteCreated(w, member)
}

// UpdateMemberRole changes a member's role.
func (h *ProjectHandlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req updateMemberRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Role.IsValid() {
		httputil.WriteValidationError(w, "invalid role")
		return
	}

	if err := h.projectService.UpdateMemberRole(r.Context(), id, authCtx.User.ID, userID, req.Role); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventRoleChanged, ActorID: authCtx.User.ID,
		Scope: "project", ResourceID: id,
		Details: map[string]string{"target": strconv.FormatInt(userID, 10), "to": string(req.Role)},
	})
	httputil.WriteNoContent(w)
}

// RemoveMember removes a member from the project.
func (h *ProjectHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.projectService.RemoveMember(r.Context(), id, authCtx.User.ID, userID); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventMemberRemoved, ActorID: authCtx.User.ID,
		Scope: "project", ResourceID: id,
		Details: map[string]string{"target": strconv.FormatInt(userID, 10)},
	})
	httputil.WriteNoContent(w)
}
