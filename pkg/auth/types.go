package auth

import (
	"context"
	"time"
)

// GlobalRole is the coarse account-level role. It is separate from the
// workspace/project role hierarchy and never consulted by membership checks.
type GlobalRole string

const (
	GlobalRoleUser  GlobalRole = "user"
	GlobalRoleStaff GlobalRole = "staff"
)

// User represents a registered account.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	GlobalRole  GlobalRole `json:"global_role"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Role represents a member's role within a workspace or project.
type Role string

const (
	RoleViewer Role = "viewer" // Read-only access
	RoleMember Role = "member" // Can create and edit own content
	RoleAdmin  Role = "admin"  // Everything except deletion and owner-only settings
	RoleOwner  Role = "owner"  // Full access including membership management
)

// roleLevels defines the total order viewer < member < admin < owner.
var roleLevels = map[Role]int{
	RoleViewer: 0,
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// Level returns the role's position in the privilege order. Unknown roles
// rank below viewer.
func (r Role) Level() int {
	if level, ok := roleLevels[r]; ok {
		return level
	}
	return -1
}

// IsValid reports whether r is one of the four defined roles.
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether r ranks at or above other in the privilege order.
func (r Role) AtLeast(other Role) bool {
	return r.IsValid() && other.IsValid() && r.Level() >= other.Level()
}

// AllRoles returns the defined roles in increasing privilege order.
func AllRoles() []Role {
	return []Role{RoleViewer, RoleMember, RoleAdmin, RoleOwner}
}

// RolesIn reports whether role is present in the allow-list.
func RolesIn(role Role, allowed []Role) bool {
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

// AuthContext holds the authenticated user attached to a request. The
// identity provider has already verified the user; nothing downstream
// re-verifies it.
type AuthContext struct {
	User *User
}

type contextKey string

const authContextKey contextKey = "auth_context"

// WithAuthContext attaches the auth context to ctx.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext retrieves the auth context, or nil when the request is
// unauthenticated.
func FromContext(ctx context.Context) *AuthContext {
	ac, ok := ctx.Value(authContextKey).(*AuthContext)
	if !ok {
		return nil
	}
	return ac
}
