// Package notification records lifecycle events for the addressed user and
// serves them back for polling.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification.
type Type string

const (
	TypeTaskAssigned    Type = "task_assigned"
	TypeTaskUpdated     Type = "task_updated"
	TypeTaskApproved    Type = "task_approved"
	TypeTaskRejected    Type = "task_rejected"
	TypeUserApproved    Type = "user_approved"
	TypeUserRejected    Type = "user_rejected"
	TypeApprovalRequest Type = "approval_request"
)

// Notification is an event addressed to one user.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	TaskID    *uuid.UUID `json:"task_id,omitempty"`
	Type      Type       `json:"type"`
	Message   string     `json:"message"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

// Event is the input to Dispatch.
type Event struct {
	UserID  uuid.UUID
	TaskID  *uuid.UUID
	Type    Type
	Message string
}

// Writer persists notifications. Transactional repositories of the other
// domains implement it so a notification commits together with its transition.
type Writer interface {
	InsertNotification(ctx context.Context, n Notification) error
}

// Sink receives notifications after they have been committed.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// Repository exposes read-side persistence.
type Repository interface {
	Writer
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error)
	Get(ctx context.Context, id uuid.UUID) (Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}
