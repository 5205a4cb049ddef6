package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/kbforge/ingest/internal/tracker"
)

// LogSink emits a structured log line per operation snapshot. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the snapshot using structured fields.
func (s *LogSink) Consume(_ context.Context, op tracker.Operation) error {
	s.logger.Info("operation progress",
		zap.String("progress_id", op.ProgressID),
		zap.String("source_key", op.SourceKey),
		zap.String("kind", string(op.Kind)),
		zap.String("status", string(op.Status)),
		zap.Int("percent", op.Percent),
		zap.String("message", op.Message),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
