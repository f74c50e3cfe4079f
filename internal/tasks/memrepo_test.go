package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/shared"
)

type memRepo struct {
	mu        sync.Mutex
	tasks     map[uuid.UUID]Task
	approvals []shared.ApprovalLog
	notes     []notification.Notification
	audit     []shared.AuditLog
	// readBarrier, when set, holds every Get until all parties have read.
	readBarrier *sync.WaitGroup
}

func newMemRepo() *memRepo {
	return &memRepo{tasks: make(map[uuid.UUID]Task)}
}

func (m *memRepo) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	barrier := m.readBarrier
	m.mu.Unlock()
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	if !ok {
		return Task{}, fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	return t, nil
}

func (m *memRepo) ListByRoom(ctx context.Context, roomID uuid.UUID, filter ListFilter) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if t.RoomID != roomID || t.IsDeleted {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.AssignedTo != nil && t.AssignedTo != *filter.AssignedTo {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *memRepo) History(ctx context.Context, taskID uuid.UUID) ([]shared.ApprovalLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range m.approvals {
		if l.RefID == taskID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{repo: m, writes: make(map[uuid.UUID]Task)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, t := range tx.writes {
		m.tasks[id] = t
	}
	m.approvals = append(m.approvals, tx.approvals...)
	m.notes = append(m.notes, tx.notes...)
	m.audit = append(m.audit, tx.audit...)
	return nil
}

func (m *memRepo) task(id uuid.UUID) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

func (m *memRepo) notesFor(userID uuid.UUID) []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// memTx stages writes; the caller already holds repo.mu.
type memTx struct {
	repo      *memRepo
	writes    map[uuid.UUID]Task
	approvals []shared.ApprovalLog
	notes     []notification.Notification
	audit     []shared.AuditLog
}

func (t *memTx) InsertNotification(ctx context.Context, n notification.Notification) error {
	t.notes = append(t.notes, n)
	return nil
}

func (t *memTx) Insert(ctx context.Context, task Task) error {
	if _, ok := t.repo.tasks[task.ID]; ok {
		return fmt.Errorf("duplicate task %s", task.ID)
	}
	t.writes[task.ID] = task
	return nil
}

func (t *memTx) UpdateIfVersion(ctx context.Context, task Task, expected int64) error {
	current, ok := t.repo.tasks[task.ID]
	if !ok || current.Version != expected {
		return fmt.Errorf("%w: task %s", shared.ErrConcurrentModification, task.ID)
	}
	t.writes[task.ID] = task
	return nil
}

func (t *memTx) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	log.Module = approvalModule
	log.ID = int64(len(t.repo.approvals) + len(t.approvals) + 1)
	t.approvals = append(t.approvals, log)
	return nil
}

func (t *memTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	t.audit = append(t.audit, log)
	return nil
}

// memAssignees mirrors identity.Service.RequireWorker over a fixed set.
type memAssignees map[uuid.UUID]identity.Principal

func (m memAssignees) RequireWorker(ctx context.Context, id, roomID uuid.UUID) (identity.Principal, error) {
	p, ok := m[id]
	if !ok || !p.InRoom(roomID) || !p.IsApproved() || !identity.IsWorker(p.Role) {
		return identity.Principal{}, fmt.Errorf("%w: invalid assignee", shared.ErrValidation)
	}
	return p, nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingMetrics) ObserveTransition(from, to, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}
