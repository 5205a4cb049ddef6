package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tracker errors.
var (
	// ErrUnknownOperation reports an update for a progress id that was never
	// registered.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrDuplicateProgressID rejects re-registration of an id; progress ids
	// are immutable and unique per submission.
	ErrDuplicateProgressID = errors.New("progress id already registered")
)

// Clock supplies timestamps; the system implementation lives in
// internal/clock/system.
type Clock interface {
	Now() time.Time
}

// ProgressSource reads the backend's progress record for one operation.
type ProgressSource interface {
	Progress(ctx context.Context, progressID string) (Update, error)
}

// Tracker holds the registry of observable operations. It is safe for
// concurrent use; separate operations are independent and may be observed
// concurrently without coordination.
type Tracker struct {
	clock  Clock
	logger *zap.Logger
	sinks  []Sink

	mu       sync.RWMutex
	ops      map[string]Operation
	bySource map[string]string // source key -> displayed progress id
}

// New constructs a Tracker fanning out snapshots to the given sinks.
func New(clock Clock, logger *zap.Logger, sinks ...Sink) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		clock:    clock,
		logger:   logger,
		sinks:    append([]Sink(nil), sinks...),
		ops:      make(map[string]Operation),
		bySource: make(map[string]string),
	}
}

// Register records a freshly submitted operation in pending state and makes
// it the displayed operation for sourceKey, displacing any earlier one for
// the same source (a source may be re-crawled under a new progress id).
func (t *Tracker) Register(ctx context.Context, progressID, sourceKey string, kind Kind) (Operation, error) {
	if progressID == "" {
		return Operation{}, errors.New("progress id is required")
	}
	now := t.clock.Now()

	t.mu.Lock()
	if _, exists := t.ops[progressID]; exists {
		t.mu.Unlock()
		return Operation{}, fmt.Errorf("%w: %s", ErrDuplicateProgressID, progressID)
	}
	op := Operation{
		ProgressID: progressID,
		SourceKey:  sourceKey,
		Kind:       kind,
		Status:     StatusPending,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	t.ops[progressID] = op
	if sourceKey != "" {
		t.bySource[sourceKey] = progressID
	}
	t.mu.Unlock()

	t.fanOut(ctx, op)
	return op, nil
}

// Apply merges one backend update into the registered operation and fans the
// snapshot out to sinks. Updates for unknown ids return ErrUnknownOperation;
// updates arriving after a terminal status are ignored.
func (t *Tracker) Apply(ctx context.Context, u Update) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("invalid update: %w", err)
	}
	ts := u.TS
	if ts.IsZero() {
		ts = t.clock.Now()
	}

	t.mu.Lock()
	op, ok := t.ops[u.ProgressID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOperation, u.ProgressID)
	}
	if op.Status.Terminal() {
		t.mu.Unlock()
		t.logger.Debug("update after terminal status ignored",
			zap.String("progress_id", u.ProgressID),
			zap.String("status", string(u.Status)))
		return nil
	}
	op.Status = u.Status
	op.Percent = u.Percent
	op.Message = u.Message
	op.UpdatedAt = ts
	t.ops[u.ProgressID] = op
	t.mu.Unlock()

	t.fanOut(ctx, op)
	return nil
}

// Get returns the operation registered under progressID.
func (t *Tracker) Get(progressID string) (Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.ops[progressID]
	return op, ok
}

// DisplayedForSource returns the single operation currently displayed for a
// logical source entity.
func (t *Tracker) DisplayedForSource(sourceKey string) (Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.bySource[sourceKey]
	if !ok {
		return Operation{}, false
	}
	op, ok := t.ops[id]
	return op, ok
}

// List returns all operations ordered by start time, newest first.
func (t *Tracker) List() []Operation {
	t.mu.RLock()
	out := make([]Operation, 0, len(t.ops))
	for _, op := range t.ops {
		out = append(out, op)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ProgressID > out[j].ProgressID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Watch polls src for the operation's progress every interval until a
// terminal status is applied or ctx finishes. Poll failures are logged and
// retried on the next tick.
func (t *Tracker) Watch(ctx context.Context, src ProgressSource, progressID string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("watch %s: %w", progressID, ctx.Err())
		case <-ticker.C:
			u, err := src.Progress(ctx, progressID)
			if err != nil {
				t.logger.Warn("progress poll failed",
					zap.String("progress_id", progressID), zap.Error(err))
				continue
			}
			u.ProgressID = progressID
			if err := t.Apply(ctx, u); err != nil {
				return err
			}
			if u.Status.Terminal() {
				return nil
			}
		}
	}
}

// Close flushes and closes all sinks.
func (t *Tracker) Close(ctx context.Context) error {
	var errs []error
	for _, sink := range t.sinks {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) fanOut(ctx context.Context, op Operation) {
	for _, sink := range t.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Consume(ctx, op); err != nil {
			t.logger.Warn("operation sink consume failed",
				zap.String("progress_id", op.ProgressID), zap.Error(err))
		}
	}
}
