// Package api provides the HTTP REST API for the tracklane project tracker.
//
// # Overview
//
// The API is built on gorilla/mux and organized into domain-specific handler
// groups, each registered against the shared router by NewServer:
//
//   - AuthHandlers: registration, token issue and revocation
//   - WorkspaceHandlers: workspaces, workspace membership, invitations
//   - ProjectHandlers: projects and project membership
//   - TaskHandlers, TimesheetHandlers, CommentHandlers, AttachmentHandlers:
//     project-scoped resources
//   - AuditHandlers: audit trails, gated through the permission gate
//
// # Authentication
//
// The server itself does not authenticate requests. The auth middleware runs
// outside this package in optional mode so that POST /auth/register stays
// reachable; every handler checks auth.FromContext and rejects anonymous
// calls itself. This keeps handler tests free of token plumbing.
//
// # Authorization
//
// Handlers never inspect membership tables. Resource reads rely on the
// service layer's access checks, and role-gated mutations call
// CheckPermission on the owning service (or the permission gate for audit
// trails). Denials are written with httputil.WriteACLError so non-members
// receive the same 403 regardless of whether the resource exists, and
// project-scoped reads return 404 for resources the caller cannot see.
//
// # Endpoints
//
// Auth:
//
//	POST   /auth/register                       - Register and receive an initial token
//	GET    /auth/me                             - Current user
//	POST   /auth/tokens                         - Issue an API token
//	DELETE /auth/tokens/{id}                    - Revoke a token
//
// Workspaces:
//
//	POST   /workspaces                          - Create workspace (creator becomes owner)
//	GET    /workspaces                          - List caller's workspaces
//	GET    /workspaces/{id}                     - Get workspace
//	PUT    /workspaces/{id}                     - Update workspace
//	DELETE /workspaces/{id}                     - Delete workspace (owner only)
//	GET    /workspaces/{id}/members             - List members
//	POST   /workspaces/{id}/members             - Add an existing user by email
//	PUT    /workspaces/{id}/members/{user_id}   - Change a member's role
//	DELETE /workspaces/{id}/members/{user_id}   - Remove a member
//	POST   /workspaces/{id}/invitations         - Invite by email
//	GET    /workspaces/{id}/invitations         - List pending invitations
//	POST   /invitations/{token}/accept          - Accept an invitation token
//	GET    /workspaces/{id}/audit               - Audit trail (owner or admin)
//	GET    /workspaces/{id}/projects            - List projects the caller can see
//
// Projects mirror the workspace membership surface under /projects/{id},
// plus the project-scoped resources:
//
//	GET    /projects/{id}/tasks
//	GET    /projects/{id}/timesheets
//	GET    /projects/{id}/attachments
//	GET    /projects/{id}/audit
//
// Tasks, timesheets, comments and attachments are created and mutated
// through their own top-level routes (/tasks, /timesheets, /comments,
// /attachments); every operation revalidates project membership on the
// service side.
package api
