// Package rooms is the tenant boundary: room codes, membership and the
// administrative mutations on members.
package rooms

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/identity"
)

// Room is a tenant. CurrentCode is unique across all rooms.
type Room struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	CurrentCode string    `json:"current_code"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// CodeRotation is an append-only record of a code change.
type CodeRotation struct {
	ID        int64     `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	OldCode   string    `json:"old_code"`
	NewCode   string    `json:"new_code"`
	RotatedBy uuid.UUID `json:"rotated_by"`
	RotatedAt time.Time `json:"rotated_at"`
}

// MemberFilter narrows ListMembers.
type MemberFilter struct {
	Status identity.AccountStatus
}

var statusEdges = map[identity.AccountStatus][]identity.AccountStatus{
	identity.StatusPending:   {identity.StatusApproved, identity.StatusRejected},
	identity.StatusApproved:  {identity.StatusSuspended},
	identity.StatusSuspended: {identity.StatusApproved},
}

// CanChangeStatus reports whether an admin may move an account from one
// status to another. Rejected is terminal.
func CanChangeStatus(from, to identity.AccountStatus) bool {
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanChangeRole reports whether role may be changed by an admin. Admin is
// neither a source nor a target.
func CanChangeRole(from, to identity.Role) bool {
	return (from == identity.RoleUser && to == identity.RoleApprover) ||
		(from == identity.RoleApprover && to == identity.RoleUser)
}
