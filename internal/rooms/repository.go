package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskroom/taskroom/internal/identity"
	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/platform/db"
	"github.com/taskroom/taskroom/internal/shared"
)

// errCodeTaken signals a code collision; the service retries with a new code.
var errCodeTaken = errors.New("room code already in use")

// Repository defines room persistence.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Room, error)
	FindByCode(ctx context.Context, code string) (Room, error)
	ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]CodeRotation, error)
	ListMembers(ctx context.Context, roomID uuid.UUID, filter MemberFilter) ([]identity.Principal, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	notification.Writer
	CodeInUse(ctx context.Context, code string) (bool, error)
	InsertRoom(ctx context.Context, room Room) error
	LockRoom(ctx context.Context, id uuid.UUID) (Room, error)
	AppendRotation(ctx context.Context, rot CodeRotation) error
	UpdateCode(ctx context.Context, roomID uuid.UUID, code string) error
	AttachPrincipal(ctx context.Context, principalID, roomID uuid.UUID, at time.Time) error
	LockPrincipal(ctx context.Context, id uuid.UUID) (identity.Principal, error)
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, status identity.AccountStatus, at time.Time) error
	UpdateRole(ctx context.Context, id uuid.UUID, role identity.Role, actor uuid.UUID, at time.Time) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

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
	tx    pgx.Tx
	audit *shared.AuditLogger
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.TranslateConflict(db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			Writer: notification.NewTxWriter(tx),
			tx:     tx,
			audit:  shared.NewAuditLogger(tx),
		})
	}))
}

const roomColumns = `id, name, current_code, created_by, created_at`

func scanRoom(row pgx.Row) (Room, error) {
	var room Room
	err := row.Scan(&room.ID, &room.Name, &room.CurrentCode, &room.CreatedBy, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, shared.ErrNotFound
	}
	return room, err
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Room, error) {
	var room Room
	err := r.retry.Do(ctx, func() error {
		var err error
		room, err = scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
		return err
	})
	return room, err
}

func (r *repository) FindByCode(ctx context.Context, code string) (Room, error) {
	var room Room
	err := r.retry.Do(ctx, func() error {
		var err error
		room, err = scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE current_code = $1`, code))
		return err
	})
	return room, err
}

func (r *repository) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]CodeRotation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, room_id, old_code, new_code, rotated_by, rotated_at
		FROM room_code_history
		WHERE room_id = $1
		ORDER BY rotated_at DESC, id DESC
		LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list code history: %w", err)
	}
	defer rows.Close()
	var out []CodeRotation
	for rows.Next() {
		var rot CodeRotation
		if err := rows.Scan(&rot.ID, &rot.RoomID, &rot.OldCode, &rot.NewCode, &rot.RotatedBy, &rot.RotatedAt); err != nil {
			return nil, err
		}
		out = append(out, rot)
	}
	return out, rows.Err()
}

func (r *repository) ListMembers(ctx context.Context, roomID uuid.UUID, filter MemberFilter) ([]identity.Principal, error) {
	query := `SELECT ` + identity.PrincipalColumns + ` FROM principals WHERE room_id = $1`
	args := []any{roomID}
	if filter.Status != "" {
		query += ` AND account_status = $2`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, username`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var out []identity.Principal
	for rows.Next() {
		p, err := identity.ScanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	var used bool
	err := t.tx.QueryRow(ctx, `SELECT
		EXISTS (SELECT 1 FROM rooms WHERE current_code = $1) OR
		EXISTS (SELECT 1 FROM room_code_history WHERE old_code = $1)`, code).Scan(&used)
	return used, err
}

func (t *txRepository) InsertRoom(ctx context.Context, room Room) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO rooms (`+roomColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		room.ID, room.Name, room.CurrentCode, room.CreatedBy, room.CreatedAt)
	if db.IsUniqueViolation(err, "rooms_current_code_key") {
		return errCodeTaken
	}
	return err
}

func (t *txRepository) LockRoom(ctx context.Context, id uuid.UUID) (Room, error) {
	return scanRoom(t.tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) AppendRotation(ctx context.Context, rot CodeRotation) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO room_code_history (room_id, old_code, new_code, rotated_by, rotated_at)
		VALUES ($1, $2, $3, $4, $5)`, rot.RoomID, rot.OldCode, rot.NewCode, rot.RotatedBy, rot.RotatedAt)
	return err
}

func (t *txRepository) UpdateCode(ctx context.Context, roomID uuid.UUID, code string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE rooms SET current_code = $2 WHERE id = $1`, roomID, code)
	if db.IsUniqueViolation(err, "rooms_current_code_key") {
		return errCodeTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) AttachPrincipal(ctx context.Context, principalID, roomID uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE principals SET room_id = $2, updated_at = $3 WHERE id = $1 AND room_id IS NULL`,
		principalID, roomID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: principal already belongs to a room", shared.ErrValidation)
	}
	return nil
}

func (t *txRepository) LockPrincipal(ctx context.Context, id uuid.UUID) (identity.Principal, error) {
	p, err := identity.ScanPrincipal(t.tx.QueryRow(ctx,
		`SELECT `+identity.PrincipalColumns+` FROM principals WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.Principal{}, fmt.Errorf("%w: member %s", shared.ErrNotFound, id)
	}
	return p, err
}

func (t *txRepository) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status identity.AccountStatus, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE principals SET account_status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), at)
	return err
}

func (t *txRepository) UpdateRole(ctx context.Context, id uuid.UUID, role identity.Role, actor uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE principals
		SET role = $2, role_changed_by = $3, role_changed_at = $4, updated_at = $4
		WHERE id = $1`, id, string(role), actor, at)
	return err
}

func (t *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return t.audit.Record(ctx, log)
}
