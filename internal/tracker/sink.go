package tracker

import "context"

// Sink observes operation snapshots as updates are applied. Implementations
// must be safe for repeated calls and honor ctx deadlines; a sink error is
// logged by the Tracker but never fails the update.
type Sink interface {
	Consume(ctx context.Context, op Operation) error
	Close(ctx context.Context) error
}
