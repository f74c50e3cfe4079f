package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskroom/taskroom/internal/identity"
	jobmetrics "github.com/taskroom/taskroom/internal/jobs"
	"github.com/taskroom/taskroom/internal/notification"
	"github.com/taskroom/taskroom/internal/platform/mail"
	"github.com/taskroom/taskroom/internal/shared"
	_ "github.com/taskroom/taskroom/internal/testing/guard"
)

type stubRecipients struct {
	principals map[uuid.UUID]identity.Principal
	err        error
}

func (s stubRecipients) FindByID(_ context.Context, id uuid.UUID) (identity.Principal, error) {
	if s.err != nil {
		return identity.Principal{}, s.err
	}
	p, ok := s.principals[id]
	if !ok {
		return identity.Principal{}, fmt.Errorf("%w: principal %s", shared.ErrNotFound, id)
	}
	return p, nil
}

type recordingMailer struct {
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func deliverTask(t *testing.T, userID uuid.UUID, typ notification.Type, message string) *asynq.Task {
	t.Helper()
	task, err := NewDeliverTask(notification.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return task
}

func newJob(recipients Recipients, mailer Mailer, enabled bool) *DeliveryJob {
	return NewDeliveryJob(recipients, mailer, enabled, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestDeliverSendsEmailToRecipient(t *testing.T) {
	ana := identity.Principal{ID: uuid.New(), Username: "ana", Email: "ana@example.com"}
	mailer := &recordingMailer{}
	job := newJob(stubRecipients{principals: map[uuid.UUID]identity.Principal{ana.ID: ana}}, mailer, true)

	err := job.Handle(context.Background(), deliverTask(t, ana.ID, notification.TypeTaskApproved, "Task approved: Write report"))
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ana@example.com", mailer.sent[0].To)
	assert.Equal(t, "Your task was approved", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "Task approved: Write report")
}

func TestDeliverDisabledSkipsSilently(t *testing.T) {
	mailer := &recordingMailer{}
	job := newJob(stubRecipients{err: errors.New("must not be called")}, mailer, false)

	require.NoError(t, job.Handle(context.Background(), deliverTask(t, uuid.New(), notification.TypeTaskAssigned, "x")))
	assert.Empty(t, mailer.sent)
}

func TestDeliverMissingRecipientSkipsRetry(t *testing.T) {
	job := newJob(stubRecipients{}, &recordingMailer{}, true)

	err := job.Handle(context.Background(), deliverTask(t, uuid.New(), notification.TypeTaskAssigned, "x"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDeliverTransientLookupIsRetried(t *testing.T) {
	boom := errors.New("connection reset")
	job := newJob(stubRecipients{err: boom}, &recordingMailer{}, true)

	err := job.Handle(context.Background(), deliverTask(t, uuid.New(), notification.TypeTaskAssigned, "x"))
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestDeliverMailerFailureIsRetried(t *testing.T) {
	ana := identity.Principal{ID: uuid.New(), Username: "ana", Email: "ana@example.com"}
	boom := errors.New("smtp down")
	job := newJob(stubRecipients{principals: map[uuid.UUID]identity.Principal{ana.ID: ana}}, &recordingMailer{err: boom}, true)

	err := job.Handle(context.Background(), deliverTask(t, ana.ID, notification.TypeTaskRejected, "x"))
	require.ErrorIs(t, err, boom)
}

func TestDeliverMalformedPayloadSkipsRetry(t *testing.T) {
	job := newJob(stubRecipients{}, &recordingMailer{}, true)

	err := job.Handle(context.Background(), asynq.NewTask(TaskNotificationDeliver, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
