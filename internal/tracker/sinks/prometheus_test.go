package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/ingest/internal/tracker"
)

func runningOp(id string) tracker.Operation {
	now := time.Unix(1700000000, 0).UTC()
	return tracker.Operation{
		ProgressID: id,
		Kind:       tracker.KindCrawl,
		Status:     tracker.StatusRunning,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPrometheusSinkLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	ctx := context.Background()

	op := runningOp("pid-1")
	require.NoError(t, sink.Consume(ctx, op))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.opsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.opsSubmitted.WithLabelValues("crawl")))

	// Repeated non-terminal snapshots do not double count.
	op.Percent = 50
	require.NoError(t, sink.Consume(ctx, op))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.opsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.opsSubmitted.WithLabelValues("crawl")))

	op.Status = tracker.StatusCompleted
	op.UpdatedAt = op.StartedAt.Add(30 * time.Second)
	require.NoError(t, sink.Consume(ctx, op))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.opsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.opsCompleted.WithLabelValues("crawl", "success")))
}

func TestPrometheusSinkFailureResult(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	ctx := context.Background()

	op := runningOp("pid-2")
	op.Kind = tracker.KindUpload
	require.NoError(t, sink.Consume(ctx, op))

	op.Status = tracker.StatusFailed
	require.NoError(t, sink.Consume(ctx, op))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.opsCompleted.WithLabelValues("upload", "error")))
}

func TestPrometheusSinkTerminalWithoutStart(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	op := runningOp("pid-3")
	op.Status = tracker.StatusCompleted
	require.NoError(t, sink.Consume(context.Background(), op))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.opsActive))
}
