package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/taskroom/taskroom/internal/notification"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries push deliveries of committed notifications.
	QueueNotifications = "notifications"
	// TaskNotificationDeliver delivers one notification outside the polling path.
	TaskNotificationDeliver = "notification:deliver"

	deliverMaxRetry = 5
)

// DeliverPayload is the queued copy of a committed notification.
type DeliverPayload struct {
	NotificationID uuid.UUID         `json:"notification_id"`
	UserID         uuid.UUID         `json:"user_id"`
	TaskID         *uuid.UUID        `json:"task_id,omitempty"`
	Type           notification.Type `json:"type"`
	Message        string            `json:"message"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewDeliverTask constructs an Asynq task for n. The notification id doubles as
// the task id so a re-published notification is queued once.
func NewDeliverTask(n notification.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(DeliverPayload{
		NotificationID: n.ID,
		UserID:         n.UserID,
		TaskID:         n.TaskID,
		Type:           n.Type,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDeliver, data,
		asynq.TaskID(n.ID.String()),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(deliverMaxRetry),
	), nil
}
