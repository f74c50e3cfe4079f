package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/taskroom/taskroom/internal/identity"
	jobmetrics "github.com/taskroom/taskroom/internal/jobs"
	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/platform/mail"
	"github.com/taskroom/taskroom/internal/shared"
)

const channelEmail = "email"

// Recipients resolves the addressee of a notification.
type Recipients interface {
	FindByID(ctx context.Context, id uuid.UUID) (identity.Principal, error)
}

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// DeliveryJob pushes committed notifications to their recipient by email.
type DeliveryJob struct {
	Recipients Recipients
	Mailer     Mailer
	Enabled    bool
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewDeliveryJob wires dependencies for the delivery handler. With enabled
// false every task is acknowledged without sending.
func NewDeliveryJob(recipients Recipients, mailer Mailer, enabled bool, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeliveryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryJob{
		Recipients: recipients,
		Mailer:     mailer,
		Enabled:    enabled,
		Logger:     logger,
		Metrics:    metrics,
	}
}

// Handle processes TaskNotificationDeliver tasks.
func (j *DeliveryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("notification deliver: handler not configured")
	}
	var payload DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode deliver payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskNotificationDeliver)
	return tracker.End(j.deliver(ctx, payload))
}

func (j *DeliveryJob) deliver(ctx context.Context, payload DeliverPayload) error {
	logger := j.Logger.With(
		slog.String("notification_id", payload.NotificationID.String()),
		slog.String("type", string(payload.Type)),
	)
	if !j.Enabled || j.Mailer == nil {
		j.Metrics.AddDelivery(channelEmail, "skipped")
		return nil
	}
	recipient, err := j.Recipients.FindByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.Warn("notification recipient vanished", slog.String("user_id", payload.UserID.String()))
			j.Metrics.AddDelivery(channelEmail, "skipped")
			return fmt.Errorf("recipient %s: %v: %w", payload.UserID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("load recipient: %w", err)
	}
	if recipient.Email == "" {
		j.Metrics.AddDelivery(channelEmail, "skipped")
		return nil
	}
	msg := mail.Message{
		To:      recipient.Email,
		Subject: subjectFor(payload.Type),
		Body:    fmt.Sprintf("Hi %s,\n\n%s\n", recipient.Username, payload.Message),
	}
	if err := j.Mailer.Send(ctx, msg); err != nil {
		j.Metrics.AddDelivery(channelEmail, "failed")
		logger.Warn("send notification email", slog.Any("error", err))
		return err
	}
	j.Metrics.AddDelivery(channelEmail, "sent")
	logger.Info("notification email sent")
	return nil
}

func subjectFor(t notification.Type) string {
	switch t {
	case notification.TypeTaskAssigned:
		return "A task was assigned to you"
	case notification.TypeTaskUpdated:
		return "One of your tasks was updated"
	case notification.TypeTaskApproved:
		return "Your task was approved"
	case notification.TypeTaskRejected:
		return "Your task needs rework"
	case notification.TypeUserApproved:
		return "Your account was approved"
	case notification.TypeUserRejected:
		return "Your registration was rejected"
	case notification.TypeApprovalRequest:
		return "A new member is waiting for approval"
	default:
		return "Taskroom notification"
	}
}
