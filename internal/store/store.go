// Package store declares interfaces for persisting operation records.
package store

import (
	"context"
	"errors"

	"github.com/kbforge/ingest/internal/tracker"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("operation record not found")

// OperationStore persists operation snapshots keyed by progress id. Upsert
// is called once per applied update, so implementations should be cheap for
// repeated writes of the same key.
type OperationStore interface {
	// Upsert inserts or replaces the snapshot for op.ProgressID.
	Upsert(ctx context.Context, op tracker.Operation) error
	// Get loads one snapshot or returns ErrNotFound.
	Get(ctx context.Context, progressID string) (tracker.Operation, error)
	// List returns snapshots ordered by start time descending.
	List(ctx context.Context, limit, offset int) ([]tracker.Operation, error)
}
