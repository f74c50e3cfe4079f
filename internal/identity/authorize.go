package identity

import (
	"fmt"

	"github.com/taskroom/taskroom/internal/shared"
)

// Common role sets used by the lifecycle and membership rules.
var (
	// WorkerRoles may be assigned tasks and move their own tasks forward.
	WorkerRoles = []Role{RoleUser, RoleApprover}
	// ReviewerRoles may approve or reject submitted work. Admin satisfies it implicitly.
	ReviewerRoles = []Role{RoleApprover}
	// AdminRoles manage tasks and membership.
	AdminRoles = []Role{RoleAdmin}
)

// Satisfies is the pure role check: role must be in required, with admin
// standing in for approver. An empty required set admits every valid role.
func Satisfies(role Role, required ...Role) bool {
	if !role.IsValid() {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if r == role {
			return true
		}
		if r == RoleApprover && role == RoleAdmin {
			return true
		}
	}
	return false
}

// CheckAccount fails unless the principal's account is approved. The error
// kind tells callers which message to render.
func CheckAccount(p Principal) error {
	switch p.Status {
	case StatusApproved:
		return nil
	case StatusPending:
		return shared.ErrPendingApproval
	case StatusSuspended:
		return shared.ErrSuspended
	case StatusRejected:
		return shared.ErrRejected
	default:
		return fmt.Errorf("%w: unknown account status %q", shared.ErrForbidden, p.Status)
	}
}

// Authorize gates a room-scoped action on account status and role.
func Authorize(p Principal, required ...Role) error {
	if err := CheckAccount(p); err != nil {
		return err
	}
	if !Satisfies(p.Role, required...) {
		return fmt.Errorf("%w: role %s may not perform this action", shared.ErrForbidden, p.Role)
	}
	return nil
}

// IsWorker reports whether role can be assigned tasks. Admin does not qualify.
func IsWorker(role Role) bool {
	return role == RoleUser || role == RoleApprover
}
