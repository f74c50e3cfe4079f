package tasks

import (
	"math"
	"time"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/shared"
)

// actorRule names who may traverse an edge.
type actorRule int

const (
	// assigneeOnly edges belong to the worker the task is assigned to.
	assigneeOnly actorRule = iota
	// reviewer edges need approver, which admin satisfies, and forbid self-review.
	reviewer
)

type edge struct {
	from, to Status
	rule     actorRule
	action   shared.ApprovalAction
}

// edges is the complete transition table. Creation into assigned is not an
// edge; it is Service.Create.
var edges = []edge{
	{from: StatusAssigned, to: StatusInProgress, rule: assigneeOnly},
	{from: StatusInProgress, to: StatusSubmitted, rule: assigneeOnly, action: shared.ApprovalSubmit},
	{from: StatusSubmitted, to: StatusApproved, rule: reviewer, action: shared.ApprovalApprove},
	{from: StatusSubmitted, to: StatusRejected, rule: reviewer, action: shared.ApprovalReject},
	{from: StatusRejected, to: StatusInProgress, rule: assigneeOnly, action: shared.ApprovalRework},
}

func lookupEdge(from, to Status) (edge, bool) {
	for _, e := range edges {
		if e.from == from && e.to == to {
			return e, true
		}
	}
	return edge{}, false
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	_, ok := lookupEdge(from, to)
	return ok
}

// NextStatuses lists the states reachable from s in one step.
func NextStatuses(s Status) []Status {
	var out []Status
	for _, e := range edges {
		if e.from == s {
			out = append(out, e.to)
		}
	}
	return out
}

// allows reports whether actor may traverse e on t.
func (e edge) allows(actor identity.Principal, t Task) bool {
	switch e.rule {
	case assigneeOnly:
		return identity.IsWorker(actor.Role) && actor.ID == t.AssignedTo
	case reviewer:
		return identity.Satisfies(actor.Role, identity.ReviewerRoles...) && actor.ID != t.AssignedTo
	default:
		return false
	}
}

// IsOverdue is true when the due date has passed and the task is neither
// approved nor rejected.
func IsOverdue(t Task, now time.Time) bool {
	if t.Status == StatusApproved || t.Status == StatusRejected {
		return false
	}
	return t.DueDate.Before(now)
}

// DaysUntilDue rounds the time left until the due date up to whole days.
// It is negative once the due date has passed by more than a day.
func DaysUntilDue(t Task, now time.Time) int {
	days := t.DueDate.Sub(now).Hours() / 24
	return int(math.Ceil(days))
}
