package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/audit"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/httputil"
	"github.com/tracklane/tracklane/pkg/workspaces"
)

// WorkspaceHandlers handles workspace and workspace-membership HTTP
// requests. Route-level role checks go through the permission gate; the
// service enforces the rest.
type WorkspaceHandlers struct {
	workspaceService workspaces.Service
	gate             PermissionGate
	recorder         audit.Recorder
}

// NewWorkspaceHandlers creates a new WorkspaceHandlers. The recorder may be
// nil when auditing is disabled.
func NewWorkspaceHandlers(workspaceService workspaces.Service, permissionGate PermissionGate, recorder audit.Recorder) *WorkspaceHandlers {
	return &WorkspaceHandlers{
		workspaceService: workspaceService,
		gate:             permissionGate,
		recorder:         recorder,
	}
}

// RegisterRoutes registers workspace routes.
func (h *WorkspaceHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/workspaces", h.CreateWorkspace).Methods("POST")
	router.HandleFunc("/workspaces", h.ListWorkspaces).Methods("GET")
	router.HandleFunc("/workspaces/{id}", h.GetWorkspace).Methods("GET")
	router.HandleFunc("/workspaces/{id}", h.UpdateWorkspace).Methods("PUT")
	router.HandleFunc("/workspaces/{id}", h.DeleteWorkspace).Methods("DELETE")

	// Members
	router.HandleFunc("/workspaces/{id}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/workspaces/{id}/members", h.InviteUser).Methods("POST")
	router.HandleFunc("/workspaces/{id}/members/{user_id}", h.UpdateMemberRole).Methods("PUT")
	router.HandleFunc("/workspaces/{id}/members/{user_id}", h.RemoveMember).Methods("DELETE")

	// Invitations
	router.HandleFunc("/workspaces/{id}/invitations", h.CreateInvitation).Methods("POST")
	router.HandleFunc("/workspaces/{id}/invitations", h.ListInvitations).Methods("GET")
	router.HandleFunc("/workspaces/{id}/invitations/{invitation_id}", h.RevokeInvitation).Methods("DELETE")
	router.HandleFunc("/invitations/{token}/accept", h.AcceptInvitation).Methods("POST")
}

// CreateWorkspace creates a workspace with the caller as its first owner.
func (h *WorkspaceHandlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req workspaces.CreateWorkspaceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	ws, err := h.workspaceService.CreateWorkspace(r.Context(), &req, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventWorkspaceCreated, ActorID: authCtx.User.ID,
		Scope: "workspace", ResourceID: ws.ID,
	})
	httputil.WriteCreated(w, ws)
}

// ListWorkspaces lists the caller's workspaces.
func (h *WorkspaceHandlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	list, err := h.workspaceService.ListWorkspaces(r.Context(), authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// GetWorkspace retrieves a workspace the caller belongs to.
func (h *WorkspaceHandlers) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.gate.CheckWorkspacePermission(r.Context(), id, authCtx.User.ID, auth.AnyRole); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	ws, err := h.workspaceService.GetWorkspace(r.Context(), id)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, ws)
}

// UpdateWorkspace applies partial updates. Requires owner or admin.
func (h *WorkspaceHandlers) UpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req workspaces.UpdateWorkspaceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if _, err := h.gate.CheckWorkspacePermission(r.Context(), id, authCtx.User.ID, auth.Managers); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	if err := h.workspaceService.UpdateWorkspace(r.Context(), id, &req); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// DeleteWorkspace deletes a workspace. Owner only.
func (h *WorkspaceHandlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.gate.CheckWorkspacePermission(r.Context(), id, authCtx.User.ID, auth.OwnerOnly); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	if err := h.workspaceService.DeleteWorkspace(r.Context(), id); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListMembers lists workspace members. Any member may look.
func (h *WorkspaceHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.gate.CheckWorkspacePermission(r.Context(), id, authCtx.User.ID, auth.AnyRole); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	members, err := h.workspaceService.ListMembers(r.Context(), id)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, members)
}

type inviteUserRequest struct {
	Email string    `json:"email"`
	Role  auth.Role `json:"role,omitempty"`
}

// InviteUser adds an existing user to the workspace by email.
func (h *WorkspaceHandlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req inviteUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	member, err := h.workspaceService.InviteUser(r.Context(), id, authCtx.User.ID, req.Email, req.Role)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventMemberAdded, ActorID: authCtx.User.ID,
		Scope: "workspace", ResourceID: id,
		Details: map[string]string{"target": strconv.FormatInt(member.UserID, 10), "role": string(member.Role)},
	})
	httputil.WriteCreated(w, member)
}

type updateMemberRoleRequest struct {
	Role auth.Role `json:"role"`
}

// UpdateMemberRole changes a member's role.
func (h *WorkspaceHandlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
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

	if err := h.workspaceService.UpdateMemberRole(r.Context(), id, authCtx.User.ID, userID, req.Role); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventRoleChanged, ActorID: authCtx.User.ID,
		Scope: "workspace", ResourceID: id,
		Details: map[string]string{"target": strconv.FormatInt(userID, 10), "to": string(req.Role)},
	})
	httputil.WriteNoContent(w)
}

// RemoveMember removes a member from the workspace.
func (h *WorkspaceHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
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

	if err := h.workspaceService.RemoveMember(r.Context(), id, authCtx.User.ID, userID); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventMemberRemoved, ActorID: authCtx.User.ID,
		Scope: "workspace", ResourceID: id,
		Details: map[string]string{"target": strconv.FormatInt(userID, 10)},
	})
	httputil.WriteNoContent(w)
}

type createInvitationRequest struct {
	Email string    `json:"email"`
	Role  auth.Role `json:"role,omitempty"`
}

// CreateInvitation creates a token invitation for an email address that may
// not have an account yet.
func (h *WorkspaceHandlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req createInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	inv := &workspaces.Invitation{
		WorkspaceID: id,
		Email:       req.Email,
		Role:        req.Role,
		InvitedBy:   authCtx.User.ID,
	}
	if err := h.workspaceService.CreateInvitation(r.Context(), inv); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteCreated(w, inv)
}

// ListInvitations lists pending invitations. Requires owner or admin.
func (h *WorkspaceHandlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
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

	invitations, err := h.workspaceService.ListInvitations(r.Context(), id)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, invitations)
}

// RevokeInvitation deletes a pending invitation. Requires owner or admin.
func (h *WorkspaceHandlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}

	if _, err := h.gate.CheckWorkspacePermission(r.Context(), id, authCtx.User.ID, auth.Managers); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	if err := h.workspaceService.RevokeInvitation(r.Context(), id, invitationID); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// AcceptInvitation redeems an invitation token for the authenticated user.
func (h *WorkspaceHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	workspaceID, err := h.workspaceService.AcceptInvitation(r.Context(), token, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	recordAuditEvent(r, h.recorder, &audit.Event{
		Type: audit.EventInviteAccepted, ActorID: authCtx.User.ID,
		Scope: "workspace", ResourceID: workspaceID,
	})
	httputil.WriteNoContent(w)
}
