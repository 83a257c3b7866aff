package acl

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by membership services. Callers translate these
// into transport-level rejections; no service ever recovers from one locally.
var (
	// ErrNotFound indicates a referenced user, workspace or project does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrNotAMember indicates the caller has no membership row for the resource.
	// Transport layers surface this as a generic forbidden response so callers
	// cannot distinguish "resource exists" from "not a member".
	ErrNotAMember = errors.New("not a member")

	// ErrForbidden indicates the caller is a member but lacks a required role.
	ErrForbidden = errors.New("insufficient role")

	// ErrConflict indicates a duplicate membership or unique constraint clash.
	ErrConflict = errors.New("already exists")
)

// InvariantViolationError indicates a mutation would leave a workspace or
// project with zero owners. It is kept distinct from ErrForbidden so the user
// sees why the operation was rejected rather than a generic permission error.
type InvariantViolationError struct {
	Resource   string // "workspace" or "project"
	ResourceID int64
	Reason     string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Resource, e.ResourceID, e.Reason)
}

// NewLastOwnerError builds the invariant error for removing or demoting the
// sole owner of a resource.
func NewLastOwnerError(resource string, resourceID int64) *InvariantViolationError {
	return &InvariantViolationError{
		Resource:   resource,
		ResourceID: resourceID,
		Reason:     "cannot change the role of the last owner",
	}
}

// IsInvariantViolation checks if an error is an invariant violation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolationError
	return errors.As(err, &iv)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsNotAMember reports whether err is (or wraps) ErrNotAMember.
func IsNotAMember(err error) bool { return errors.Is(err, ErrNotAMember) }

// IsForbidden reports whether err is (or wraps) ErrForbidden.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsConflict reports whether err is (or wraps) ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
