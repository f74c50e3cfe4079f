// Package identity resolves authenticated principals and answers role checks.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of roles a principal can hold inside a room.
type Role string

const (
	RoleUser     Role = "user"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

// IsValid checks if the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleApprover, RoleAdmin:
		return true
	default:
		return false
	}
}

// AccountStatus tracks admin approval of a principal. It is independent of Role.
type AccountStatus string

const (
	StatusPending   AccountStatus = "pending"
	StatusApproved  AccountStatus = "approved"
	StatusRejected  AccountStatus = "rejected"
	StatusSuspended AccountStatus = "suspended"
)

// IsValid checks if the status is valid.
func (s AccountStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSuspended:
		return true
	default:
		return false
	}
}

// Principal is an authenticated actor with a role and account status.
type Principal struct {
	ID        uuid.UUID     `json:"id"`
	Username  string        `json:"username"`
	Email     string        `json:"email"`
	RoomID    *uuid.UUID    `json:"room_id,omitempty"`
	Role      Role          `json:"role"`
	Status    AccountStatus `json:"account_status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// InRoom reports whether the principal belongs to roomID.
func (p Principal) InRoom(roomID uuid.UUID) bool {
	return p.RoomID != nil && *p.RoomID == roomID
}

// IsApproved reports whether the principal may act inside its room.
func (p Principal) IsApproved() bool {
	return p.Status == StatusApproved
}

// RegisterInput carries the profile a principal submits after the
// authentication provider created its identity.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Role     Role   `json:"role" validate:"required,oneof=user admin"`
	RoomCode string `json:"room_code,omitempty" validate:"required_if=Role user,omitempty,len=6"`
}
