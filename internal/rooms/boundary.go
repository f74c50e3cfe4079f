package rooms

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/shared"
)

// AssertSameRoom fails with ErrCrossTenantAccess unless p belongs to roomID.
func AssertSameRoom(p identity.Principal, roomID uuid.UUID) error {
	if !p.InRoom(roomID) {
		return fmt.Errorf("%w: room %s", shared.ErrCrossTenantAccess, roomID)
	}
	return nil
}

// RoomOf returns the room of p, failing with ErrNotFound when it has none.
func RoomOf(p identity.Principal) (uuid.UUID, error) {
	if p.RoomID == nil {
		return uuid.Nil, fmt.Errorf("%w: principal has no room", shared.ErrNotFound)
	}
	return *p.RoomID, nil
}
