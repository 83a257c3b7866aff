package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/attachments"
	"github.com/tracklane/tracklane/pkg/audit"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/comments"
	"github.com/tracklane/tracklane/pkg/projects"
	"github.com/tracklane/tracklane/pkg/tasks"
	"github.com/tracklane/tracklane/pkg/timesheets"
	"github.com/tracklane/tracklane/pkg/users"
	"github.com/tracklane/tracklane/pkg/workspaces"
)

// PermissionGate is the authorization surface every handler checks through.
// All checks flow through one implementation so they share a single counter
// and denial audit trail.
type PermissionGate interface {
	CheckWorkspaceAccess(ctx context.Context, userID, workspaceID int64) (bool, error)
	CheckWorkspacePermission(ctx context.Context, workspaceID, userID int64, allowed []auth.Role) (*workspaces.Member, error)
	CheckProjectAccess(ctx context.Context, userID, projectID int64) (bool, error)
	CheckProjectPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error)
}

// Services carries the service layer the API serves. Audit may be nil;
// every other field, Gate included, is required.
type Services struct {
	Users       users.Store
	Tokens      TokenIssuer
	Workspaces  workspaces.Service
	Projects    projects.Service
	Tasks       tasks.Service
	Timesheets  timesheets.Service
	Comments    comments.Service
	Attachments attachments.Service
	Audit       audit.Recorder
	Gate        PermissionGate
}

// Server is the HTTP API server. Authentication middleware wraps the router
// outside this package; handlers themselves reject unauthenticated calls.
type Server struct {
	router *mux.Router
}

// NewServer creates an API server with all routes registered.
func NewServer(svc Services) *Server {
	router := mux.NewRouter()

	NewAuthHandlers(svc.Users, svc.Tokens).RegisterRoutes(router)
	NewWorkspaceHandlers(svc.Workspaces, svc.Gate, svc.Audit).RegisterRoutes(router)
	NewProjectHandlers(svc.Projects, svc.Gate, svc.Audit).RegisterRoutes(router)
	NewTaskHandlers(svc.Tasks).RegisterRoutes(router)
	NewTimesheetHandlers(svc.Timesheets).RegisterRoutes(router)
	NewCommentHandlers(svc.Comments).RegisterRoutes(router)
	NewAttachmentHandlers(svc.Attachments).RegisterRoutes(router)
	if svc.Audit != nil {
		NewAuditHandlers(svc.Audit, svc.Gate).RegisterRoutes(router)
	}

	return &Server{router: router}
}

// Router returns the underlying router so callers can attach middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
