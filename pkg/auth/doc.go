// Package auth holds the identity and role model: the user type, the
// workspace/project role hierarchy, the role-to-capability table, and the
// request auth context consumed by middleware and handlers.
package auth
