// Package memory provides an in-memory operation store for development and
// testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kbforge/ingest/internal/store"
	"github.com/kbforge/ingest/internal/tracker"
)

// OperationStore keeps operation snapshots in a map.
type OperationStore struct {
	mu  sync.RWMutex
	ops map[string]tracker.Operation
}

// NewOperationStore constructs an empty OperationStore.
func NewOperationStore() *OperationStore {
	return &OperationStore{ops: make(map[string]tracker.Operation)}
}

// Upsert inserts or replaces the snapshot for op.ProgressID.
func (s *OperationStore) Upsert(_ context.Context, op tracker.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ProgressID] = op
	return nil
}

// Get loads one snapshot by progress id.
func (s *OperationStore) Get(_ context.Context, progressID string) (tracker.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[progressID]
	if !ok {
		return tracker.Operation{}, store.ErrNotFound
	}
	return op, nil
}

// List returns snapshots ordered by start time descending.
func (s *OperationStore) List(_ context.Context, limit, offset int) ([]tracker.Operation, error) {
	s.mu.RLock()
	all := make([]tracker.Operation, 0, len(s.ops))
	for _, op := range s.ops {
		all = append(all, op)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ProgressID > all[j].ProgressID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]tracker.Operation, len(all))
	copy(out, all)
	return out, nil
}
