package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/audit"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/gate"
	"github.com/tracklane/tracklane/pkg/projects"
)

// fakeProjectService serves a single project 7 in workspace 1. User 10 is
// its owner, user 20 a member, everyone else an outsider.
type fakeProjectService struct {
	projects.Service

	roles   map[int64]auth.Role
	removed []int64
}

func (f *fakeProjectService) roleOf(userID int64) (auth.Role, bool) {
	role, ok := f.roles[userID]
	return role, ok
}

func (f *fakeProjectService) CheckAccess(ctx context.Context, userID, projectID int64) (bool, error) {
	if projectID != 7 {
		return false, nil
	}
	_, ok := f.roleOf(userID)
	return ok, nil
}

func (f *fakeProjectService) CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error) {
	if projectID != 7 {
		return nil, fmt.Errorf("project %d: %w", projectID, acl.ErrNotFound)
	}
	role, ok := f.roleOf(userID)
	if !ok {
		return nil, fmt.Errorf("user %d in project %d: %w", userID, projectID, acl.ErrNotAMember)
	}
	if !auth.RolesIn(role, allowed) {
		return nil, fmt.Errorf("user %d in project %d: %w", userID, projectID, acl.ErrForbidden)
	}
	return &projects.Member{ProjectID: projectID, UserID: userID, Role: role}, nil
}

func (f *fakeProjectService) AccessibleProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	if _, ok := f.roleOf(userID); ok {
		return []int64{7}, nil
	}
	return nil, nil
}

func (f *fakeProjectService) CreateProject(ctx context.Context, req *projects.CreateProjectRequest, creatorUserID int64) (*projects.Project, error) {
	if req.WorkspaceID != 1 {
		return nil, fmt.Errorf("workspace %d: %w", req.WorkspaceID, acl.ErrNotAMember)
	}
	return &projects.Project{ID: 7, WorkspaceID: req.WorkspaceID, Name: req.Name}, nil
}

func (f *fakeProjectService) GetProject(ctx context.Context, id int64) (*projects.Project, error) {
	if id != 7 {
		return nil, fmt.Errorf("project %d: %w", id, acl.ErrNotFound)
	}
	return &projects.Project{ID: 7, WorkspaceID: 1, Name: "Launch"}, nil
}

func (f *fakeProjectService) DeleteProject(ctx context.Context, id int64) error {
	return nil
}

func (f *fakeProjectService) ListMembers(ctx context.Context, projectID int64) ([]*projects.Member, error) {
	members := make([]*projects.Member, 0, len(f.roles))
	for userID, role := range f.roles {
		members = append(members, &projects.Member{ProjectID: projectID, UserID: userID, Role: role})
	}
	return members, nil
}

func (f *fakeProjectService) AddMember(ctx context.Context, projectID, actorID, userID int64, role auth.Role) (*projects.Member, error) {
	actorRole, ok := f.roleOf(actorID)
	if !ok || !auth.RolesIn(actorRole, auth.Managers) {
		return nil, fmt.Errorf("user %d in project %d: %w", actorID, projectID, acl.ErrForbidden)
	}
	if _, exists := f.roleOf(userID); exists {
		return nil, fmt.Errorf("user %d: %w", userID, acl.ErrConflict)
	}
	return &projects.Member{ProjectID: projectID, UserID: userID, Role: role}, nil
}

func (f *fakeProjectService) UpdateMemberRole(ctx context.Context, projectID, actorID, targetID int64, newRole auth.Role) error {
	if targetID == 10 && newRole != auth.RoleOwner {
		return acl.NewLastOwnerError("project", projectID)
	}
	return nil
}

func (f *fakeProjectService) RemoveMember(ctx context.Context, projectID, actorID, targetID int64) error {
	actorRole, _ := f.roleOf(actorID)
	if actorID != targetID && !auth.RolesIn(actorRole, auth.Managers) {
		return fmt.Errorf("user %d in project %d: %w", actorID, projectID, acl.ErrForbidden)
	}
	f.removed = append(f.removed, targetID)
	return nil
}

func newProjectTestRouter() (*mux.Router, *fakeProjectService, *memoryRecorder) {
	service := &fakeProjectService{roles: map[int64]auth.Role{
		10: auth.RoleOwner,
		20: auth.RoleMember,
	}}
	recorder := &memoryRecorder{}
	permGate := gate.New(&fakeWorkspaceService{roles: map[int64]auth.Role{}}, service, nil)
	router := mux.NewRouter()
	NewProjectHandlers(service, permGate, recorder).RegisterRoutes(router)
	return router, service, recorder
}

func TestCreateProjectHandler(t *testing.T) {
	router, _, recorder := newProjectTestRouter()

	t.Run("creates and audits", func(t *testing.T) {
		rec := doJSON(router, "POST", "/projects", 10, map[string]interface{}{
			"name": "Launch", "workspace_id": 1,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, recorder.events, 1)
		assert.Equal(t, audit.EventProjectCreated, recorder.events[0].Type)
		assert.Equal(t, int64(7), recorder.events[0].ResourceID)
	})

	t.Run("requires workspace_id", func(t *testing.T) {
		rec := doJSON(router, "POST", "/projects", 10, map[string]string{"name": "Launch"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("workspace outsider is denied", func(t *testing.T) {
		rec := doJSON(router, "POST", "/projects", 10, map[string]interface{}{
			"name": "Launch", "workspace_id": 2,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestGetProjectHandler(t *testing.T) {
	router, _, _ := newProjectTestRouter()

	t.Run("member reads", func(t *testing.T) {
		rec := doJSON(router, "GET", "/projects/7", 20, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Launch")
	})

	t.Run("outsider gets 404 not 403", func(t *testing.T) {
		rec := doJSON(router, "GET", "/projects/7", 99, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteProjectHandler(t *testing.T) {
	router, _, _ := newProjectTestRouter()

	t.Run("owner deletes", func(t *testing.T) {
		rec := doJSON(router, "DELETE", "/projects/7", 10, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("member cannot delete", func(t *testing.T) {
		rec := doJSON(router, "DELETE", "/projects/7", 20, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "access denied")
	})
}

func TestProjectRouteChecksGoThroughGate(t *testing.T) {
	service := &fakeProjectService{roles: map[int64]auth.Role{
		10: auth.RoleOwner,
		20: auth.RoleMember,
	}}
	recorder := &memoryRecorder{}
	checks := gate.NewCheckCounter(prometheus.NewRegistry())
	permGate := gate.New(&fakeWorkspaceService{roles: map[int64]auth.Role{}}, service, checks)
	permGate.RecordDenials(recorder)
	router := mux.NewRouter()
	NewProjectHandlers(service, permGate, recorder).RegisterRoutes(router)

	t.Run("denied delete is counted and audited", func(t *testing.T) {
		rec := doJSON(router, "DELETE", "/projects/7", 20, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)

		assert.Equal(t, float64(1), testutil.ToFloat64(checks.WithLabelValues("project", "denied")))
		require.Len(t, recorder.events, 1)
		event := recorder.events[0]
		assert.Equal(t, audit.EventAccessDenied, event.Type)
		assert.Equal(t, int64(20), event.ActorID)
		assert.Equal(t, "project", event.Scope)
		assert.Equal(t, int64(7), event.ResourceID)
	})

	t.Run("allowed read is counted without a denial event", func(t *testing.T) {
		rec := doJSON(router, "GET", "/projects/7/members", 10, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, float64(1), testutil.ToFloat64(checks.WithLabelValues("project", "allowed")))
		assert.Len(t, recorder.events, 1)
	})
}

func TestProjectMemberHandlers(t *testing.T) {
	router, service, recorder := newProjectTestRouter()

	t.Run("owner adds a member with audit", func(t *testing.T) {
		rec := doJSON(router, "POST", "/projects/7/members", 10, map[string]interface{}{
			"user_id": 30, "role": "member",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotEmpty(t, recorder.events)
		last := recorder.events[len(recorder.events)-1]
		assert.Equal(t, audit.EventMemberAdded, last.Type)
		assert.Equal(t, "30", last.Details["target"])
	})

	t.Run("duplicate member conflicts", func(t *testing.T) {
		rec := doJSON(router, "POST", "/projects/7/members", 10, map[string]interface{}{
			"user_id": 20, "role": "member",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid role rejected before the service", func(t *testing.T) {
		rec := doJSON(router, "PUT", "/projects/7/members/20", 10, map[string]string{"role": "superuser"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("demoting the last owner conflicts", func(t *testing.T) {
		rec := doJSON(router, "PUT", "/projects/7/members/10", 10, map[string]string{"role": "member"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "last owner")
	})

	t.Run("member leaves on their own", func(t *testing.T) {
		rec := doJSON(router, "DELETE", "/projects/7/members/20", 20, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, service.removed, int64(20))
		last := recorder.events[len(recorder.events)-1]
		assert.Equal(t, audit.EventMemberRemoved, last.Type)
	})

	t.Run("member cannot remove others", func(t *testing.T) {
		rec := doJSON(router, "DELETE", "/projects/7/members/10", 20, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
