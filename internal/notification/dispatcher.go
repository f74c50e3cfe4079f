package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskroom/taskroom/internal/shared"
)

// Dispatcher creates notification records. It is called by the lifecycle and
// membership services inside their transactions; delivery to sinks happens
// only after the caller committed.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher constructs a Dispatcher fanning committed notifications out to sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger, now: time.Now}
}

// Dispatch builds a notification from ev and writes it through w.
func (d *Dispatcher) Dispatch(ctx context.Context, w Writer, ev Event) (Notification, error) {
	if ev.UserID == uuid.Nil {
		return Notification{}, fmt.Errorf("%w: notification recipient required", shared.ErrValidation)
	}
	if ev.Type == "" {
		return Notification{}, fmt.Errorf("%w: notification type required", shared.ErrValidation)
	}
	msg := strings.TrimSpace(ev.Message)
	if msg == "" {
		return Notification{}, fmt.Errorf("%w: notification message required", shared.ErrValidation)
	}
	n := Notification{
		ID:        uuid.New(),
		UserID:    ev.UserID,
		TaskID:    ev.TaskID,
		Type:      ev.Type,
		Message:   msg,
		CreatedAt: d.now().UTC(),
	}
	if err := w.InsertNotification(ctx, n); err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// Publish hands committed notifications to every sink. Sink failures are
// logged: the notification row is already durable and polling will find it.
func (d *Dispatcher) Publish(ctx context.Context, notes ...Notification) {
	if d == nil {
		return
	}
	for _, n := range notes {
		for _, sink := range d.sinks {
			if err := sink.Deliver(ctx, n); err != nil {
				d.logger.Warn("notification sink",
					slog.String("notification_id", n.ID.String()),
					slog.String("type", string(n.Type)),
					slog.Any("error", err))
			}
		}
	}
}
