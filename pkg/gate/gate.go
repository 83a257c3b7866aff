package gate

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/audit"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/projects"
	"github.com/tracklane/tracklane/pkg/workspaces"
)

// WorkspaceChecker is the workspace-scope slice of the ACL surface.
type WorkspaceChecker interface {
	CheckAccess(ctx context.Context, userID, workspaceID int64) (bool, error)
	CheckPermission(ctx context.Context, workspaceID, userID int64, allowed []auth.Role) (*workspaces.Member, error)
}

// ProjectChecker is the project-scope slice of the ACL surface.
type ProjectChecker interface {
	CheckAccess(ctx context.Context, userID, projectID int64) (bool, error)
	CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error)
	AccessibleProjectIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Gate fronts both ACL services with a uniform check surface.
type Gate struct {
	workspaces WorkspaceChecker
	projects   ProjectChecker
	checks     *prometheus.CounterVec
	denials    audit.Recorder
}

// New creates a Gate. The counter may be nil; when set it is incremented per
// check with scope and outcome labels.
func New(workspaceChecker WorkspaceChecker, projectChecker ProjectChecker, checks *prometheus.CounterVec) *Gate {
	return &Gate{
		workspaces: workspaceChecker,
		projects:   projectChecker,
		checks:     checks,
	}
}

// RecordDenials makes the gate write an access.denied audit event whenever a
// permission check fails on role grounds. Recording is best-effort and never
// changes the check result.
func (g *Gate) RecordDenials(recorder audit.Recorder) {
	g.denials = recorder
}

// NewCheckCounter builds the permission-check counter and registers it.
func NewCheckCounter(registry *prometheus.Registry) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklane_permission_checks_total",
			Help: "Total number of permission checks by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)
	registry.MustRegister(c)
	return c
}

// CheckWorkspaceAccess reports whether the user belongs to the workspace.
func (g *Gate) CheckWorkspaceAccess(ctx context.Context, userID, workspaceID int64) (bool, error) {
	ok, err := g.workspaces.CheckAccess(ctx, userID, workspaceID)
	g.count("workspace", accessOutcome(ok, err))
	return ok, err
}

// CheckWorkspacePermission verifies the user holds one of the allowed roles
// in the workspace and returns the membership.
func (g *Gate) CheckWorkspacePermission(ctx context.Context, workspaceID, userID int64, allowed []auth.Role) (*workspaces.Member, error) {
	m, err := g.workspaces.CheckPermission(ctx, workspaceID, userID, allowed)
	g.count("workspace", permissionOutcome(err))
	g.recordDenial(ctx, "workspace", workspaceID, userID, err)
	return m, err
}

// CheckProjectAccess reports whether the user belongs to the project.
func (g *Gate) CheckProjectAccess(ctx context.Context, userID, projectID int64) (bool, error) {
	ok, err := g.projects.CheckAccess(ctx, userID, projectID)
	g.count("project", accessOutcome(ok, err))
	return ok, err
}

// CheckProjectPermission verifies the user holds one of the allowed roles in
// the project and returns the membership.
func (g *Gate) CheckProjectPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error) {
	m, err := g.projects.CheckPermission(ctx, projectID, userID, allowed)
	g.count("project", permissionOutcome(err))
	g.recordDenial(ctx, "project", projectID, userID, err)
	return m, err
}

// AccessibleProjectIDs returns the ids of every project the user belongs
// to. Visibility filtering passes through without a check outcome, so it is
// not counted.
func (g *Gate) AccessibleProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	return g.projects.AccessibleProjectIDs(ctx, userID)
}

// ProjectACL is the project-scoped face of the gate. It has the shape the
// project-scoped services expect from their checker, so tasks, time entries,
// comments and attachments authorize through the gate like the HTTP handlers
// do.
type ProjectACL struct {
	g *Gate
}

// ProjectACL returns the project-scoped face of the gate.
func (g *Gate) ProjectACL() *ProjectACL {
	return &ProjectACL{g: g}
}

// CheckAccess reports whether the user belongs to the project.
func (a *ProjectACL) CheckAccess(ctx context.Context, userID, projectID int64) (bool, error) {
	return a.g.CheckProjectAccess(ctx, userID, projectID)
}

// CheckPermission verifies the user holds one of the allowed roles in the
// project and returns the membership.
func (a *ProjectACL) CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error) {
	return a.g.CheckProjectPermission(ctx, projectID, userID, allowed)
}

// AccessibleProjectIDs returns the ids of every project the user belongs to.
func (a *ProjectACL) AccessibleProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	return a.g.AccessibleProjectIDs(ctx, userID)
}

func (g *Gate) recordDenial(ctx context.Context, scope string, resourceID, userID int64, err error) {
	if g.denials == nil || err == nil {
		return
	}
	if !acl.IsNotAMember(err) && !acl.IsForbidden(err) {
		return
	}
	_ = g.denials.Record(ctx, &audit.Event{
		Type:       audit.EventAccessDenied,
		ActorID:    userID,
		Scope:      scope,
		ResourceID: resourceID,
	})
}

func (g *Gate) count(scope, outcome string) {
	if g.checks != nil {
		g.checks.WithLabelValues(scope, outcome).Inc()
	}
}

func accessOutcome(ok bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case ok:
		return "allowed"
	default:
		return "denied"
	}
}

func permissionOutcome(err error) string {
	switch {
	case err == nil:
		return "allowed"
	case acl.IsNotAMember(err), acl.IsForbidden(err):
		return "denied"
	default:
		return "error"
	}
}
