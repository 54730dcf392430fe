package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
)

func TestMetricsRecorderKeepsLatestSamples(t *testing.T) {
	bus := realtime.NewLocalBus()
	var events []realtime.Event
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, bus.StartForwarder(ctx, func(ev realtime.Event) { events = append(events, ev) }))

	r := NewMetricsRecorder("/", 2, bus, nil)
	n := 0
	r.capture = func(string) MetricSample {
		n++
		return MetricSample{CapturedAt: time.Unix(int64(n), 0).UTC(), DiskUsedBytes: int64(n)}
	}
	for i := 0; i < 3; i++ {
		r.Record(ctx)
	}
	latest := r.Latest(0)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(2), latest[0].DiskUsedBytes)
	assert.Equal(t, int64(3), latest[1].DiskUsedBytes)
	assert.Len(t, r.Latest(1), 1)

	require.Len(t, events, 3)
	assert.Equal(t, realtime.EventMetrics, events[0].Type)
	assert.Equal(t, models.RoleAdmin, events[0].Role)
}

func TestCaptureHostMetricsFallsBackToRoot(t *testing.T) {
	sample := CaptureHostMetrics("/definitely/not/here")
	assert.False(t, sample.CapturedAt.IsZero())
	assert.Positive(t, sample.DiskTotalBytes)
}
