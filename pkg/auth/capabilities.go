package auth

// Action represents an abstract operation on a workspace or project resource.
type Action string

const (
	ActionView           Action = "view"
	ActionCreate         Action = "create"
	ActionEdit           Action = "edit"
	ActionEditOwn        Action = "edit_own"
	ActionDelete         Action = "delete"
	ActionInvite         Action = "invite"
	ActionManageSettings Action = "manage_settings"
	ActionManageMembers  Action = "manage_members"
)

// roleCapabilities is the role-to-action allow table. It is policy
// documentation queried via CanPerformAction; enforcement at call sites uses
// the explicit allow-lists below, which must be kept consistent with it.
var roleCapabilities = map[Role][]Action{
	RoleOwner: {
		ActionView, ActionCreate, ActionEdit, ActionEditOwn, ActionDelete,
		ActionInvite, ActionManageSettings, ActionManageMembers,
	},
	RoleAdmin: {
		ActionView, ActionCreate, ActionEdit, ActionEditOwn,
		ActionInvite, ActionManageSettings, ActionManageMembers,
	},
	RoleMember: {
		ActionView, ActionCreate, ActionEditOwn,
	},
	RoleViewer: {
		ActionView,
	},
}

// CanPerformAction reports whether the capability table grants action to role.
func CanPerformAction(role Role, action Action) bool {
	for _, a := range roleCapabilities[role] {
		if a == action {
			return true
		}
	}
	return false
}

// Allow-lists passed explicitly to permission checks per call site. Kept here
// so the policy lives next to the capability table it must agree with.
var (
	// OwnerOnly gates workspace/project deletion and owner-only settings.
	OwnerOnly = []Role{RoleOwner}

	// Managers gates invites, role changes, member removal and deletion of
	// comments and timesheets.
	Managers = []Role{RoleOwner, RoleAdmin}

	// Contributors gates creation and updates of projects, tasks, timesheets
	// and comments.
	Contributors = []Role{RoleOwner, RoleAdmin, RoleMember}

	// AnyRole gates read access; every member may view.
	AnyRole = []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer}
)
