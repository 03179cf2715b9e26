package adapter

import (
	"context"
	"time"
)

// JobQueue is an at-least-once delivery channel for job ids. It holds no
// business state: a popped id is only a hint that work may exist, and the
// job row's guarded queued -> leased transition is the actual authority.
// Duplicated or stale deliveries are therefore harmless.
type JobQueue interface {
	// Enqueue schedules the job id for delivery no earlier than availableAt.
	// Enqueueing an id that is already scheduled is a no-op.
	Enqueue(ctx context.Context, jobID string, availableAt time.Time) error

	// Dequeue pops one due job id, or domain.ErrQueueEmpty when none is due.
	Dequeue(ctx context.Context) (string, error)

	// Pending reports how many ids are currently scheduled, for metrics.
	Pending(ctx context.Context) (int64, error)
}
