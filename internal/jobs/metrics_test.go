package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("notification:deliver").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("notification:deliver").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("notification:deliver", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("notification:deliver", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("notification:deliver")))
}

func TestAddDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddDelivery("email", "sent")
	m.AddDelivery("email", "sent")
	m.AddDelivery("email", "skipped")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.deliveries.WithLabelValues("email", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("email", "skipped")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AddDelivery("email", "sent")
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
}
