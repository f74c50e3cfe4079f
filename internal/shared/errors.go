package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller lacks the role or ownership for the action.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition indicates the action is not permitted in the current state for anyone.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrCrossTenantAccess indicates the resource belongs to another room.
	ErrCrossTenantAccess = errors.New("cross tenant access")
	// ErrInvalidCode indicates a room join code did not match any room.
	ErrInvalidCode = errors.New("invalid room code")
	// ErrConcurrentModification indicates an optimistic write lost against another writer.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrPendingApproval indicates the account still waits for admin approval.
	ErrPendingApproval = errors.New("account pending approval")
	// ErrSuspended indicates the account has been suspended.
	ErrSuspended = errors.New("account suspended")
	// ErrRejected indicates the account registration was rejected.
	ErrRejected = errors.New("account rejected")
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated occurs when no verified principal accompanies the request.
	ErrUnauthenticated = errors.New("unauthenticated")
)
