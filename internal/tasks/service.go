package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/rooms"
	"github.com/taskroom/taskroom/internal/shared"
)

// Assignees validates prospective assignees.
type Assignees interface {
	RequireWorker(ctx context.Context, id, roomID uuid.UUID) (identity.Principal, error)
}

// Metrics observes transition outcomes.
type Metrics interface {
	ObserveTransition(from, to, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, string, string) {}

// Service is the lifecycle engine. Every operation takes the resolved
// principal explicitly.
type Service struct {
	repo       Repository
	assignees  Assignees
	dispatcher *notification.Dispatcher
	metrics    Metrics
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the lifecycle engine. metrics may be nil.
func NewService(repo Repository, assignees Assignees, dispatcher *notification.Dispatcher, metrics Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		repo:       repo,
		assignees:  assignees,
		dispatcher: dispatcher,
		metrics:    metrics,
		validate:   shared.NewValidator(),
		logger:     logger,
		now:        time.Now,
	}
}

// load fetches a live task and checks it belongs to actor's room.
func (s *Service) load(ctx context.Context, actor identity.Principal, id uuid.UUID) (Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if t.IsDeleted {
		return Task{}, fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	if err := rooms.AssertSameRoom(actor, t.RoomID); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Create assigns new work in the admin's room.
func (s *Service) Create(ctx context.Context, actor identity.Principal, in CreateTaskInput) (View, error) {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return View{}, err
	}
	roomID, err := rooms.RoomOf(actor)
	if err != nil {
		return View{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return View{}, err
	}
	if _, err := s.assignees.RequireWorker(ctx, in.AssignedTo, roomID); err != nil {
		return View{}, err
	}

	now := s.now().UTC()
	t := Task{
		ID:          uuid.New(),
		RoomID:      roomID,
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		CreatedBy:   actor.ID,
		Priority:    in.Priority,
		Status:      StatusAssigned,
		DueDate:     in.DueDate.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	var published []notification.Notification
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, t); err != nil {
			return err
		}
		n, err := s.dispatcher.Dispatch(ctx, tx, assignedEvent(t))
		if err != nil {
			return err
		}
		published = append(published, n)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.dispatcher.Publish(ctx, published...)
	s.logger.Info("task created",
		slog.String("task_id", t.ID.String()),
		slog.String("assigned_to", t.AssignedTo.String()))
	return NewView(t, now), nil
}

// Get returns a live task of actor's room.
func (s *Service) Get(ctx context.Context, actor identity.Principal, id uuid.UUID) (View, error) {
	if err := identity.CheckAccount(actor); err != nil {
		return View{}, err
	}
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return View{}, err
	}
	return NewView(t, s.now()), nil
}

// List returns the live tasks of actor's room. The status filter narrows
// first, then the case-insensitive text query over title and description.
func (s *Service) List(ctx context.Context, actor identity.Principal, filter ListFilter) ([]View, error) {
	if err := identity.CheckAccount(actor); err != nil {
		return nil, err
	}
	roomID, err := rooms.RoomOf(actor)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	found, err := s.repo.ListByRoom(ctx, roomID, filter)
	if err != nil {
		return nil, err
	}
	// A Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	query := fold.String(strings.TrimSpace(filter.Query))
	now := s.now()
	out := make([]View, 0, len(found))
	for _, t := range found {
		if t.IsDeleted || (filter.Status != "" && t.Status != filter.Status) {
			continue
		}
		if query != "" && !matches(fold, t, query) {
			continue
		}
		out = append(out, NewView(t, now))
	}
	return out, nil
}

func matches(fold cases.Caser, t Task, foldedQuery string) bool {
	return strings.Contains(fold.String(t.Title), foldedQuery) ||
		strings.Contains(fold.String(t.Description), foldedQuery)
}

// Stats counts the live tasks of actor's room by status.
func (s *Service) Stats(ctx context.Context, actor identity.Principal) (Stats, error) {
	views, err := s.List(ctx, actor, ListFilter{})
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByStatus: map[Status]int{
		StatusAssigned: 0, StatusInProgress: 0, StatusSubmitted: 0, StatusApproved: 0, StatusRejected: 0,
	}}
	for _, v := range views {
		stats.Total++
		stats.ByStatus[v.Status]++
		if v.IsOverdue {
			stats.Overdue++
		}
	}
	return stats, nil
}

// Transition moves a task along one edge of the state machine. Checks run in
// a fixed order: account, existence, tenant, edge, actor, preconditions. The
// write is conditioned on the version read, so of two racing actors only one
// succeeds and the other gets ErrConcurrentModification.
func (s *Service) Transition(ctx context.Context, actor identity.Principal, id uuid.UUID, in TransitionInput) (View, error) {
	if err := identity.CheckAccount(actor); err != nil {
		return View{}, err
	}
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return View{}, err
	}
	from := t.Status
	next, published, err := s.applyTransition(ctx, actor, t, in)
	s.metrics.ObserveTransition(string(from), string(in.To), outcome(err))
	if err != nil {
		return View{}, err
	}
	s.dispatcher.Publish(ctx, published...)
	s.logger.Info("task transitioned",
		slog.String("task_id", next.ID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(next.Status)),
		slog.String("actor_id", actor.ID.String()))
	return NewView(next, s.now()), nil
}

func (s *Service) applyTransition(ctx context.Context, actor identity.Principal, t Task, in TransitionInput) (Task, []notification.Notification, error) {
	e, ok := lookupEdge(t.Status, in.To)
	if !ok {
		return Task{}, nil, fmt.Errorf("%w: task cannot move from %s to %s", shared.ErrInvalidTransition, t.Status, in.To)
	}
	if !e.allows(actor, t) {
		if e.rule == reviewer && actor.ID == t.AssignedTo {
			return Task{}, nil, fmt.Errorf("%w: you cannot review your own task", shared.ErrForbidden)
		}
		return Task{}, nil, fmt.Errorf("%w: you may not move this task to %s", shared.ErrForbidden, in.To)
	}
	reason := strings.TrimSpace(in.Reason)
	if in.To == StatusRejected && reason == "" {
		return Task{}, nil, &shared.ValidationError{Fields: map[string]string{"reason": "is required when rejecting"}}
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Task{}, nil, err
	}

	now := s.now().UTC()
	next := t
	next.Status = in.To
	next.UpdatedAt = now
	next.Version = t.Version + 1
	var ev *notification.Event
	switch in.To {
	case StatusInProgress:
		next.RejectionReason = nil
	case StatusSubmitted:
		next.SubmittedAt = &now
	case StatusApproved:
		next.ApprovedAt = &now
		approver := actor.ID
		next.ApprovedBy = &approver
		ev = &notification.Event{Type: notification.TypeTaskApproved, Message: "Task approved: " + t.Title}
	case StatusRejected:
		next.RejectionReason = &reason
		ev = &notification.Event{Type: notification.TypeTaskRejected, Message: fmt.Sprintf("Task rejected: %s. Reason: %s", t.Title, reason)}
	}

	var published []notification.Notification
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateIfVersion(ctx, next, t.Version); err != nil {
			return err
		}
		if e.action != "" {
			if err := tx.RecordApproval(ctx, shared.ApprovalLog{
				RefID: t.ID, ActorID: actor.ID, Action: e.action, Note: reason, At: now,
			}); err != nil {
				return err
			}
		}
		if ev == nil {
			return nil
		}
		ev.UserID = t.AssignedTo
		taskID := t.ID
		ev.TaskID = &taskID
		n, err := s.dispatcher.Dispatch(ctx, tx, *ev)
		if err != nil {
			return err
		}
		published = append(published, n)
		return nil
	})
	if err != nil {
		return Task{}, nil, err
	}
	return next, published, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, shared.ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}

// Update edits the mutable fields of an assigned task. Only the admin who
// created the task may edit it. A new assignee must be an approved worker of
// the room and is notified; otherwise the assignee hears about the edit.
func (s *Service) Update(ctx context.Context, actor identity.Principal, id uuid.UUID, in UpdateTaskInput) (View, error) {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return View{}, err
	}
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return View{}, err
	}
	if actor.ID != t.CreatedBy {
		return View{}, fmt.Errorf("%w: only the admin who created the task can edit it", shared.ErrForbidden)
	}
	if !t.Status.CanEdit() {
		return View{}, fmt.Errorf("%w: only assigned tasks can be edited", shared.ErrInvalidTransition)
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		in.Description = &desc
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return View{}, err
	}
	if in.IsEmpty() {
		return NewView(t, s.now()), nil
	}

	next := t
	if in.Title != nil {
		next.Title = *in.Title
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.Priority != nil {
		next.Priority = *in.Priority
	}
	if in.DueDate != nil {
		next.DueDate = in.DueDate.UTC()
	}
	reassigned := in.AssignedTo != nil && *in.AssignedTo != t.AssignedTo
	if reassigned {
		if _, err := s.assignees.RequireWorker(ctx, *in.AssignedTo, t.RoomID); err != nil {
			return View{}, err
		}
		next.AssignedTo = *in.AssignedTo
	}
	now := s.now().UTC()
	next.UpdatedAt = now
	next.Version = t.Version + 1

	ev := notification.Event{
		UserID:  next.AssignedTo,
		Type:    notification.TypeTaskUpdated,
		Message: "Task updated: " + next.Title,
	}
	if reassigned {
		ev = assignedEvent(next)
	}
	var published []notification.Notification
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateIfVersion(ctx, next, t.Version); err != nil {
			return err
		}
		if ev.TaskID == nil {
			taskID := next.ID
			ev.TaskID = &taskID
		}
		n, err := s.dispatcher.Dispatch(ctx, tx, ev)
		if err != nil {
			return err
		}
		published = append(published, n)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.dispatcher.Publish(ctx, published...)
	return NewView(next, now), nil
}

// Delete soft-deletes an assigned task. Any admin of the room may do it.
func (s *Service) Delete(ctx context.Context, actor identity.Principal, id uuid.UUID) error {
	if err := identity.Authorize(actor, identity.AdminRoles...); err != nil {
		return err
	}
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if !t.Status.CanEdit() {
		return fmt.Errorf("%w: only assigned tasks can be deleted", shared.ErrInvalidTransition)
	}
	now := s.now().UTC()
	next := t
	next.IsDeleted = true
	next.UpdatedAt = now
	next.Version = t.Version + 1
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateIfVersion(ctx, next, t.Version); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actor.ID, RoomID: t.RoomID, Action: "task.delete",
			Entity: "task", EntityID: t.ID.String(), At: now,
			Meta: map[string]any{"title": t.Title},
		})
	})
}

// History returns the review steps of a task, oldest first.
func (s *Service) History(ctx context.Context, actor identity.Principal, id uuid.UUID) ([]HistoryEntry, error) {
	if err := identity.CheckAccount(actor); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	logs, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, HistoryEntry{ActorID: l.ActorID, Action: string(l.Action), Note: l.Note, At: l.At})
	}
	return out, nil
}

func assignedEvent(t Task) notification.Event {
	taskID := t.ID
	return notification.Event{
		UserID:  t.AssignedTo,
		TaskID:  &taskID,
		Type:    notification.TypeTaskAssigned,
		Message: "New task assigned: " + t.Title,
	}
}
