package identity

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

// Repository defines principal persistence.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (Principal, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	notification.Writer
	Insert(ctx context.Context, p Principal) error
	ApprovedAdmins(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
}

// PrincipalColumns is the select list matching ScanPrincipal.
const PrincipalColumns = `id, username, email, room_id, role, account_status, created_at, updated_at`

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
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.TranslateConflict(db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{Writer: notification.NewTxWriter(tx), tx: tx})
	}))
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (Principal, error) {
	var p Principal
	err := r.retry.Do(ctx, func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+PrincipalColumns+` FROM principals WHERE id = $1`, id)
		var err error
		p, err = ScanPrincipal(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, fmt.Errorf("%w: principal %s", shared.ErrNotFound, id)
		}
		return Principal{}, err
	}
	return p, nil
}

func (t *txRepository) Insert(ctx context.Context, p Principal) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO principals (`+PrincipalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Username, p.Email, p.RoomID, string(p.Role), string(p.Status), p.CreatedAt, p.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "principals_pkey"):
		return fmt.Errorf("%w: account already registered", shared.ErrValidation)
	case db.IsUniqueViolation(err, "principals_username_key"):
		return fmt.Errorf("%w: username already taken", shared.ErrValidation)
	default:
		return err
	}
}

func (t *txRepository) ApprovedAdmins(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM principals
		WHERE room_id = $1 AND role = 'admin' AND account_status = 'approved'
		ORDER BY created_at`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ScanPrincipal reads a row selected with the canonical principal column list.
func ScanPrincipal(row pgx.Row) (Principal, error) {
	var (
		p            Principal
		role, status string
	)
	if err := row.Scan(&p.ID, &p.Username, &p.Email, &p.RoomID, &role, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Principal{}, err
	}
	p.Role = Role(role)
	p.Status = AccountStatus(status)
	return p, nil
}
