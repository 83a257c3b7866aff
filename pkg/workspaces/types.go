package workspaces

import (
	"context"
	"time"

	"github.com/tracklane/tracklane/pkg/auth"
)

// Workspace is the tenant boundary. Projects and memberships hang off it.
type Workspace struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is a user's membership in a workspace. Email and DisplayName are
// denormalized from the users table for listings.
type Member struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	UserID      int64     `json:"user_id"`
	Role        auth.Role `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
}

// Invitation is a pending invite to join a workspace, keyed by a token sent
// to the invitee's email.
type Invitation struct {
	ID          int64      `json:"id"`
	WorkspaceID int64      `json:"workspace_id"`
	Email       string     `json:"email"`
	Role        auth.Role  `json:"role"`
	Token       string     `json:"token,omitempty"`
	InvitedBy   int64      `json:"invited_by"`
	InvitedAt   time.Time  `json:"invited_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy  *int64     `json:"accepted_by,omitempty"`
}

// CreateWorkspaceRequest carries attributes for a new workspace.
type CreateWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateWorkspaceRequest carries partial updates to a workspace.
type UpdateWorkspaceRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Service defines workspace and workspace-membership management.
type Service interface {
	// Workspace CRUD
	CreateWorkspace(ctx context.Context, req *CreateWorkspaceRequest, creatorUserID int64) (*Workspace, error)
	GetWorkspace(ctx context.Context, id int64) (*Workspace, error)
	ListWorkspaces(ctx context.Context, userID int64) ([]*Workspace, error)
	UpdateWorkspace(ctx context.Context, id int64, updates *UpdateWorkspaceRequest) error
	DeleteWorkspace(ctx context.Context, id int64) error

	// Membership
	ListMembers(ctx context.Context, workspaceID int64) ([]*Member, error)
	GetMember(ctx context.Context, workspaceID, userID int64) (*Member, error)
	InviteUser(ctx context.Context, workspaceID, inviterID int64, email string, role auth.Role) (*Member, error)
	UpdateMemberRole(ctx context.Context, workspaceID, actorID, targetID int64, newRole auth.Role) error
	RemoveMember(ctx context.Context, workspaceID, actorID, targetID int64) error

	// Checks used by the permission gate
	CheckAccess(ctx context.Context, userID, workspaceID int64) (bool, error)
	CheckPermission(ctx context.Context, workspaceID, userID int64, allowed []auth.Role) (*Member, error)

	// Pending invitations
	CreateInvitation(ctx context.Context, inv *Invitation) error
	AcceptInvitation(ctx context.Context, token string, userID int64) (int64, error)
	RevokeInvitation(ctx context.Context, workspaceID, id int64) error
	ListInvitations(ctx context.Context, workspaceID int64) ([]*Invitation, error)
	CleanupExpiredInvitations(ctx context.Context) error
}
