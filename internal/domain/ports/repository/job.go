package repository

import (
	"context"
	"time"

	"telegram-image-ai/internal/domain/model"
)

// JobRepository persists generation jobs. Every status change goes through a
// compare-and-swap guarded by the expected current status; the boolean result
// reports whether this caller won the transition. A false return is not an
// error: under at-least-once delivery the loser simply no-ops.
type JobRepository interface {
	Create(ctx context.Context, qx any, job *model.Job) error
	FindByID(ctx context.Context, qx any, id string) (*model.Job, error)
	ListByUser(ctx context.Context, qx any, userID string, limit int) ([]*model.Job, error)

	// MarkLeased transitions queued -> leased, recording the lease owner and
	// deadline. This is the de-duplication point for redelivered jobs.
	MarkLeased(ctx context.Context, qx any, id, owner string, leaseUntil time.Time) (bool, error)

	// MarkSucceeded transitions leased -> succeeded and stores the result ref.
	MarkSucceeded(ctx context.Context, qx any, id, resultRef string) (bool, error)

	// MarkFailed transitions leased -> failed, recording the final error.
	MarkFailed(ctx context.Context, qx any, id, lastError string) (bool, error)

	// MarkRefunded transitions failed or cancelled -> refunded.
	MarkRefunded(ctx context.Context, qx any, id string) (bool, error)

	// MarkCancelled transitions queued -> cancelled.
	MarkCancelled(ctx context.Context, qx any, id string) (bool, error)

	// RequestCancel records a best-effort cancel wish on a job that is
	// already leased; the in-flight attempt resolves it.
	RequestCancel(ctx context.Context, qx any, id string) error

	// ReleaseForRetry transitions leased -> queued and increments the
	// attempt count, clearing the lease.
	ReleaseForRetry(ctx context.Context, qx any, id, lastError string) (bool, error)

	// ReclaimExpiredLeases returns jobs whose lease deadline has passed after
	// transitioning them leased -> queued (attempt count incremented).
	ReclaimExpiredLeases(ctx context.Context, qx any, now time.Time, limit int) ([]*model.Job, error)

	// ListQueuedStalerThan returns queued jobs untouched since the cutoff.
	// The recovery sweep re-enqueues them in case the original enqueue was
	// lost between the reservation commit and the queue push.
	ListQueuedStalerThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Job, error)

	// ListUnrefundedOlderThan returns failed and cancelled jobs whose refund
	// has not settled yet, so the sweep can finish crediting them back.
	ListUnrefundedOlderThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Job, error)

	CountByStatus(ctx context.Context, qx any) (map[model.JobStatus]int64, error)
}
