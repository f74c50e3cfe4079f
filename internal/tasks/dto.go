package tasks

import (
	"time"

	"github.com/google/uuid"
)

// CreateTaskInput is the payload for creating a task.
type CreateTaskInput struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	AssignedTo  uuid.UUID `json:"assigned_to" validate:"required"`
	Priority    Priority  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

// UpdateTaskInput carries the mutable fields of a task. Nil fields are kept.
type UpdateTaskInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
	Priority    *Priority  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DueDate     *time.Time `json:"due_date"`
}

// IsEmpty reports whether the update changes nothing.
func (in UpdateTaskInput) IsEmpty() bool {
	return in.Title == nil && in.Description == nil && in.AssignedTo == nil && in.Priority == nil && in.DueDate == nil
}

// TransitionInput requests a status change.
type TransitionInput struct {
	To     Status `json:"to" validate:"required"`
	Reason string `json:"reason" validate:"max=2000"`
}
