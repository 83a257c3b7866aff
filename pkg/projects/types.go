package projects

import (
	"context"
	"time"

	"github.com/tracklane/tracklane/pkg/auth"
)

// Project belongs to exactly one workspace. Stage and Sequence drive board
// ordering in clients and carry no permission semantics.
type Project struct {
	ID            int64     `json:"id"`
	WorkspaceID   int64     `json:"workspace_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	ResponsibleID int64     `json:"responsible_id"`
	Stage         string    `json:"stage,omitempty"`
	Sequence      int       `json:"sequence"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Member is a user's membership in a project. WorkspaceID is denormalized
// from the project row so scoped queries avoid a join. Email and DisplayName
// come from the project_members_view for listings.
type Member struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	WorkspaceID int64     `json:"workspace_id"`
	UserID      int64     `json:"user_id"`
	Role        auth.Role `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
}

// UserProject pairs a membership with its project, the shape consumed by
// project listings.
type UserProject struct {
	Member  *Member  `json:"member"`
	Project *Project `json:"project"`
}

// CreateProjectRequest carries attributes for a new project.
type CreateProjectRequest struct {
	WorkspaceID   int64  `json:"workspace_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ResponsibleID int64  `json:"responsible_id,omitempty"`
	Stage         string `json:"stage,omitempty"`
}

// UpdateProjectRequest carries partial updates to a project.
type UpdateProjectRequest struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	ResponsibleID *int64  `json:"responsible_id,omitempty"`
	Stage         *string `json:"stage,omitempty"`
	Sequence      *int    `json:"sequence,omitempty"`
}

// Service defines project and project-membership management.
type Service interface {
	// Project CRUD
	CreateProject(ctx context.Context, req *CreateProjectRequest, creatorUserID int64) (*Project, error)
	GetProject(ctx context.Context, id int64) (*Project, error)
	ListProjects(ctx context.Context, workspaceID, userID int64) ([]*Project, error)
	UpdateProject(ctx context.Context, id int64, updates *UpdateProjectRequest) error
	DeleteProject(ctx context.Context, id int64) error

	// Membership
	ListMembers(ctx context.Context, projectID int64) ([]*Member, error)
	GetMember(ctx context.Context, projectID, userID int64) (*Member, error)
	AddMember(ctx context.Context, projectID, actorID, userID int64, role auth.Role) (*Member, error)
	UpdateMemberRole(ctx context.Context, projectID, actorID, targetID int64, newRole auth.Role) error
	RemoveMember(ctx context.Context, projectID, actorID, targetID int64) error

	// Visibility for project-scoped resources. Task, timesheet, comment and
	// attachment queries filter by the returned project ids and never read
	// by foreign key directly.
	GetUserProjects(ctx context.Context, userID int64) ([]*UserProject, error)
	AccessibleProjectIDs(ctx context.Context, userID int64) ([]int64, error)

	// Checks used by the permission gate
	CheckAccess(ctx context.Context, userID, projectID int64) (bool, error)
	CheckPermission(ctx context.Context, projectID, userID int64, allowed []auth.Role) (*Member, error)
}
