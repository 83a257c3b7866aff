// Package acl defines the shared error taxonomy and allow-list types used by
// the workspace and project membership services and the permission gate.
package acl
