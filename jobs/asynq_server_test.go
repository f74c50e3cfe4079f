package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskroom/taskroom/internal/notification"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "x", Queue: QueueNotifications}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestClientDeliverEnqueuesPayload(t *testing.T) {
	fake := &fakeEnqueuer{}
	client := &Client{client: fake}
	taskID := uuid.New()
	n := notification.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		TaskID:    &taskID,
		Type:      notification.TypeTaskAssigned,
		Message:   "New task assigned: Draft plan",
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, client.Deliver(context.Background(), n))
	require.Len(t, fake.tasks, 1)
	assert.Equal(t, TaskNotificationDeliver, fake.tasks[0].Type())

	var payload DeliverPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	assert.Equal(t, n.ID, payload.NotificationID)
	assert.Equal(t, n.UserID, payload.UserID)
	require.NotNil(t, payload.TaskID)
	assert.Equal(t, taskID, *payload.TaskID)
	assert.Equal(t, n.Message, payload.Message)
}

func TestClientDeliverTreatsDuplicateAsDelivered(t *testing.T) {
	client := &Client{client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, client.Deliver(context.Background(), notification.Notification{ID: uuid.New(), UserID: uuid.New()}))
}

func TestClientDeliverSurfacesEnqueueError(t *testing.T) {
	boom := errors.New("redis down")
	client := &Client{client: &fakeEnqueuer{err: boom}}
	require.ErrorIs(t, client.Deliver(context.Background(), notification.Notification{ID: uuid.New(), UserID: uuid.New()}), boom)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func serveHealth(h *Handler) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rec
}

func TestHealthReportsQueueDepth(t *testing.T) {
	h := NewHandler(nil, nil)
	h.inspector = stubInspector{info: &asynq.QueueInfo{Queue: QueueNotifications, Pending: 3, Retry: 1}}

	rec := serveHealth(h)
	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueNotifications, Pending: 3, Retry: 1}, body)
}

func TestHealthWithoutInspector(t *testing.T) {
	rec := serveHealth(NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthUnavailable(t *testing.T) {
	h := NewHandler(nil, nil)
	h.inspector = stubInspector{err: errors.New("dial tcp: refused")}

	rec := serveHealth(h)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
