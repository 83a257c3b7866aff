// Package workspaces implements workspace lifecycle and membership: creation
// with an atomic first owner, invite-by-email, role updates and removals that
// preserve the last-owner invariant, and the membership checks consumed by
// the permission gate.
package workspaces
