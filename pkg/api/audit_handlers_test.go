package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/audit"
	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/projects"
	"github.com/tracklane/tracklane/pkg/workspaces"
)

// fakeGate grants manager rights on workspace 1 and project 7 to user 10
// only. User 20 is a plain member, everyone else an outsider.
type fakeGate struct{}

func (g *fakeGate) CheckWorkspaceAccess(ctx context.Context, userID, workspaceID int64) (bool, error) {
	_, ok := fakeRoleFor(userID)
	return ok && workspaceID == 1, nil
}

func (g *fakeGate) CheckProjectAccess(ctx context.Context, userID, projectID int64) (bool, error) {
	_, ok := fakeRoleFor(userID)
	return ok && projectID == 7, nil
}

func (g *fakeGate) CheckWorkspacePermission(ctx context.Context, workspaceID, userID int64, allowed []auth.Role) (*workspaces.Member, error) {
	return checkFakeScope(workspaceID, userID, allowed, func(role auth.Role) *workspaces.Member {
		return &workspaces.Member{WorkspaceID: workspaceID, UserID: userID, Role: role}
	})
}

func (g *fakeGate) CheckProjectPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*projects.Member, error) {
	if projectID != 7 {
		return nil, fmt.Errorf("project %d: %w", projectID, acl.ErrNotFound)
	}
	role, ok := fakeRoleFor(userID)
	if !ok {
		return nil, fmt.Errorf("user %d in project %d: %w", userID, projectID, acl.ErrNotAMember)
	}
	if !auth.RolesIn(role, allowed) {
		return nil, fmt.Errorf("user %d in project %d: %w", userID, projectID, acl.ErrForbidden)
	}
	return &projects.Member{ProjectID: projectID, UserID: userID, Role: role}, nil
}

func checkFakeScope(resourceID, userID int64, allowed []auth.Role, member func(auth.Role) *workspaces.Member) (*workspaces.Member, error) {
	if resourceID != 1 {
		return nil, fmt.Errorf("workspace %d: %w", resourceID, acl.ErrNotFound)
	}
	role, ok := fakeRoleFor(userID)
	if !ok {
		return nil, fmt.Errorf("user %d in workspace %d: %w", userID, resourceID, acl.ErrNotAMember)
	}
	if !auth.RolesIn(role, allowed) {
		return nil, fmt.Errorf("user %d in workspace %d: %w", userID, resourceID, acl.ErrForbidden)
	}
	return member(role), nil
}

func fakeRoleFor(userID int64) (auth.Role, bool) {
	switch userID {
	case 10:
		return auth.RoleAdmin, true
	case 20:
		return auth.RoleMember, true
	default:
		return "", false
	}
}

func newAuditTestRouter() (*mux.Router, *memoryRecorder) {
	recorder := &memoryRecorder{events: []*audit.Event{
		{ID: 1, Type: audit.EventMemberAdded, ActorID: 10, Scope: "workspace", ResourceID: 1},
	}}
	router := mux.NewRouter()
	NewAuditHandlers(recorder, &fakeGate{}).RegisterRoutes(router)
	return router, recorder
}

func TestListWorkspaceAuditEvents(t *testing.T) {
	router, _ := newAuditTestRouter()

	t.Run("admin reads the trail", func(t *testing.T) {
		rec := doJSON(router, "GET", "/workspaces/1/audit", 10, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "member.added")
	})

	t.Run("member is denied", func(t *testing.T) {
		rec := doJSON(router, "GET", "/workspaces/1/audit", 20, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "access denied")
	})

	t.Run("outsider is denied without detail", func(t *testing.T) {
		rec := doJSON(router, "GET", "/workspaces/1/audit", 99, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("requires authentication", func(t *testing.T) {
		rec := doJSON(router, "GET", "/workspaces/1/audit", 0, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a negative limit", func(t *testing.T) {
		rec := doJSON(router, "GET", "/workspaces/1/audit?limit=-5", 10, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListProjectAuditEvents(t *testing.T) {
	router, _ := newAuditTestRouter()

	t.Run("admin reads the trail", func(t *testing.T) {
		rec := doJSON(router, "GET", "/projects/7/audit", 10, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown project", func(t *testing.T) {
		rec := doJSON(router, "GET", "/projects/8/audit", 10, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
