// Package tasks holds the task lifecycle: the room-scoped task store and the
// state machine that moves work from assignment to approval.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no edge leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved
}

// CanEdit reports whether the task's mutable fields may change.
func (s Status) CanEdit() bool {
	return s == StatusAssigned
}

// Priority ranks tasks for the assignee.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Task is a unit of work owned by a room.
type Task struct {
	ID              uuid.UUID  `json:"id"`
	RoomID          uuid.UUID  `json:"room_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	AssignedTo      uuid.UUID  `json:"assigned_to"`
	CreatedBy       uuid.UUID  `json:"created_by"`
	Priority        Priority   `json:"priority"`
	Status          Status     `json:"status"`
	DueDate         time.Time  `json:"due_date"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ApprovedBy      *uuid.UUID `json:"approved_by,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	IsDeleted       bool       `json:"-"`
	Version         int64      `json:"version"`
}

// View is a task with its read-time derived fields.
type View struct {
	Task
	IsOverdue    bool `json:"is_overdue"`
	DaysUntilDue int  `json:"days_until_due"`
}

// NewView derives the read-time fields of t at now.
func NewView(t Task, now time.Time) View {
	return View{Task: t, IsOverdue: IsOverdue(t, now), DaysUntilDue: DaysUntilDue(t, now)}
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	Status     Status
	Query      string
	AssignedTo *uuid.UUID
}

// Stats counts the live tasks of a room.
type Stats struct {
	Total    int            `json:"total"`
	Overdue  int            `json:"overdue"`
	ByStatus map[Status]int `json:"by_status"`
}

// HistoryEntry is one review step of a task.
type HistoryEntry struct {
	ActorID uuid.UUID `json:"actor_id"`
	Action  string    `json:"action"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}
