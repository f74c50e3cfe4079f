package rooms

import "github.com/taskroom/taskroom/internal/identity"

// CreateRoomInput is the payload for creating a room.
type CreateRoomInput struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

// SetStatusInput is the payload for an account-status change.
type SetStatusInput struct {
	Status identity.AccountStatus `json:"status" validate:"required,oneof=approved rejected suspended"`
}

// ChangeRoleInput is the payload for a role change.
type ChangeRoleInput struct {
	Role identity.Role `json:"role" validate:"required,oneof=user approver"`
}
