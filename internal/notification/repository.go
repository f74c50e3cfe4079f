package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskroom/taskroom/internal/shared"
)

const insertNotificationSQL = `
	INSERT INTO notifications (id, user_id, task_id, type, message, is_read, created_at)
	VALUES ($1, $2, $3, $4, $5, FALSE, $6)`

const selectNotificationColumns = `id, user_id, task_id, type, message, is_read, created_at`

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// txWriter writes notifications inside a caller's transaction.
type txWriter struct {
	db shared.Execer
}

// NewTxWriter returns a Writer bound to tx. Other domains embed it in their
// transactional repositories.
func NewTxWriter(tx pgx.Tx) Writer {
	return &txWriter{db: tx}
}

func (w *txWriter) InsertNotification(ctx context.Context, n Notification) error {
	return insertNotification(ctx, w.db, n)
}

func (r *repository) InsertNotification(ctx context.Context, n Notification) error {
	return insertNotification(ctx, r.pool, n)
}

func insertNotification(ctx context.Context, db shared.Execer, n Notification) error {
	_, err := db.Exec(ctx, insertNotificationSQL,
		n.ID, n.UserID, n.TaskID, string(n.Type), n.Message, n.CreatedAt)
	return err
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectNotificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Notification, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectNotificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, shared.ErrNotFound
		}
		return Notification{}, err
	}
	return n, nil
}

func (r *repository) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	return err
}

func (r *repository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	return count, err
}

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n   Notification
		typ string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.TaskID, &typ, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	n.Type = Type(typ)
	return n, nil
}
