package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kbforge/ingest/internal/store"
	"github.com/kbforge/ingest/internal/tracker"
)

// StoreSink persists operation snapshots via a store.OperationStore so the
// operation history survives restarts.
type StoreSink struct {
	store  store.OperationStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided store.
func NewStoreSink(st store.OperationStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: st, logger: logger}
}

// Consume forwards the snapshot to the store. It respects ctx deadlines and
// returns store errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, op tracker.Operation) error {
	if s == nil || s.store == nil {
		return nil
	}
	if err := s.store.Upsert(ctx, op); err != nil {
		return fmt.Errorf("persist operation snapshot: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
