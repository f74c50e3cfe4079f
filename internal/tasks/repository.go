package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/platform/db"
	"github.com/taskroom/taskroom/internal/shared"
)

// approvalModule scopes task entries in the shared approvals log.
const approvalModule = "tasks"

// Repository defines task persistence. Reads return deleted tasks too; the
// service decides what is visible.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Task, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID, filter ListFilter) ([]Task, error)
	History(ctx context.Context, taskID uuid.UUID) ([]shared.ApprovalLog, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	notification.Writer
	Insert(ctx context.Context, t Task) error
	// UpdateIfVersion writes t when the stored version still equals expected
	// and fails with ErrConcurrentModification otherwise.
	UpdateIfVersion(ctx context.Context, t Task, expected int64) error
	RecordApproval(ctx context.Context, log shared.ApprovalLog) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

const taskColumns = `id, room_id, title, description, assigned_to, created_by, priority, status,
	due_date, created_at, updated_at, submitted_at, approved_at, approved_by, rejection_reason,
	is_deleted, version`

type repository struct {
	pool  *pgxpool.Pool
	retry db.RetryPolicy
}

// NewRepository creates a Postgres-backed Repository. Reads go through retry.
func NewRepository(pool *pgxpool.Pool, retry db.RetryPolicy) Repository {
	return &repository{pool: pool, retry: retry}
}

type txRepository struct {
	notification.Writer
	tx        pgx.Tx
	approvals *shared.ApprovalRecorder
	audit     *shared.AuditLogger
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			Writer:    notification.NewTxWriter(tx),
			tx:        tx,
			approvals: shared.NewApprovalRecorder(tx),
			audit:     shared.NewAuditLogger(tx),
		})
	})
	return db.TranslateConflict(err)
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		t                Task
		description      *string
		priority, status string
	)
	err := row.Scan(&t.ID, &t.RoomID, &t.Title, &description, &t.AssignedTo, &t.CreatedBy, &priority, &status,
		&t.DueDate, &t.CreatedAt, &t.UpdatedAt, &t.SubmittedAt, &t.ApprovedAt, &t.ApprovedBy, &t.RejectionReason,
		&t.IsDeleted, &t.Version)
	if err != nil {
		return Task{}, err
	}
	if description != nil {
		t.Description = *description
	}
	t.Priority = Priority(priority)
	t.Status = Status(status)
	return t, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	var t Task
	err := r.retry.Do(ctx, func() error {
		var err error
		t, err = scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
		}
		return Task{}, err
	}
	return t, nil
}

// ListByRoom applies the status and assignee filters in SQL. Free-text
// matching is left to the service.
func (r *repository) ListByRoom(ctx context.Context, roomID uuid.UUID, filter ListFilter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE room_id = $1 AND is_deleted = FALSE`
	args := []any{roomID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		query += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	query += ` ORDER BY due_date ASC, created_at DESC`

	var out []Task
	err := r.retry.Do(ctx, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

func (r *repository) History(ctx context.Context, taskID uuid.UUID) ([]shared.ApprovalLog, error) {
	return shared.NewApprovalRecorder(r.pool).List(ctx, approvalModule, taskID)
}

func (t *txRepository) Insert(ctx context.Context, task Task) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		task.ID, task.RoomID, task.Title, task.Description, task.AssignedTo, task.CreatedBy,
		string(task.Priority), string(task.Status), task.DueDate, task.CreatedAt, task.UpdatedAt,
		task.SubmittedAt, task.ApprovedAt, task.ApprovedBy, task.RejectionReason, task.IsDeleted, task.Version)
	return err
}

func (t *txRepository) UpdateIfVersion(ctx context.Context, task Task, expected int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE tasks SET
			title = $3, description = NULLIF($4, ''), assigned_to = $5, priority = $6, status = $7,
			due_date = $8, updated_at = $9, submitted_at = $10, approved_at = $11, approved_by = $12,
			rejection_reason = $13, is_deleted = $14, version = $15
		WHERE id = $1 AND version = $2`,
		task.ID, expected, task.Title, task.Description, task.AssignedTo, string(task.Priority), string(task.Status),
		task.DueDate, task.UpdatedAt, task.SubmittedAt, task.ApprovedAt, task.ApprovedBy,
		task.RejectionReason, task.IsDeleted, task.Version)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return fmt.Errorf("%w: task %s changed concurrently", shared.ErrConcurrentModification, task.ID)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %s changed since it was read", shared.ErrConcurrentModification, task.ID)
	}
	return nil
}

func (t *txRepository) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	log.Module = approvalModule
	return t.approvals.Record(ctx, log)
}

func (t *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return t.audit.Record(ctx, log)
}
