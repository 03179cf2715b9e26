package sched

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
	"telegram-image-ai/internal/domain/ports/repository"
	"telegram-image-ai/internal/infra/metrics"
	"telegram-image-ai/internal/infra/redis"
	"telegram-image-ai/internal/usecase"
)

const (
	sweepLockKey = "sweep:recovery"
	sweepBatch   = 100
)

// RecoverySweep is the repair loop behind at-least-once processing. Each pass
// it reclaims expired leases, re-enqueues queued jobs whose original enqueue
// was lost, and finishes refunds that died between the failed or cancelled
// flip and the credit. A redis lock keeps concurrent instances from double-sweeping;
// every repair is idempotent anyway, the lock just saves wasted work.
type RecoverySweep struct {
	jobsRepo repository.JobRepository
	ledger   usecase.LedgerUseCase
	queue    adapter.JobQueue
	locker   redis.Locker
	tm       repository.TransactionManager
	log      *zerolog.Logger

	interval    time.Duration
	orphanGrace time.Duration
}

func NewRecoverySweep(
	jobsRepo repository.JobRepository,
	ledger usecase.LedgerUseCase,
	queue adapter.JobQueue,
	locker redis.Locker,
	tm repository.TransactionManager,
	interval, orphanGrace time.Duration,
	log *zerolog.Logger,
) *RecoverySweep {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if orphanGrace <= 0 {
		orphanGrace = time.Minute
	}
	return &RecoverySweep{
		jobsRepo:    jobsRepo,
		ledger:      ledger,
		queue:       queue,
		locker:      locker,
		tm:          tm,
		log:         log,
		interval:    interval,
		orphanGrace: orphanGrace,
	}
}

func (w *RecoverySweep) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *RecoverySweep) tick(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, sweepLockKey, w.interval)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Error().Err(err).Msg("sweep lock failed")
		}
		return
	}
	defer func() {
		if err := w.locker.Unlock(ctx, sweepLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("sweep unlock failed")
		}
	}()

	now := time.Now()
	w.reclaimLeases(ctx, now)
	w.requeueOrphans(ctx, now)
	w.finishRefunds(ctx, now)

	if depth, err := w.queue.Pending(ctx); err == nil {
		metrics.SetQueueDepth(depth)
	}
}

func (w *RecoverySweep) reclaimLeases(ctx context.Context, now time.Time) {
	jobs, err := w.jobsRepo.ReclaimExpiredLeases(ctx, nil, now, sweepBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("reclaim expired leases failed")
		return
	}
	for _, job := range jobs {
		if err := w.queue.Enqueue(ctx, job.ID, now); err != nil {
			w.log.Warn().Err(err).Str("job_id", job.ID).Msg("re-enqueue of reclaimed job failed")
			continue
		}
		metrics.IncLeaseReclaimed()
		w.log.Warn().Str("job_id", job.ID).Str("owner", job.LeaseOwner).
			Int("attempt", job.AttemptCount).Msg("reclaimed expired lease")
	}
}

// requeueOrphans repairs reservations whose post-commit enqueue never made it
// to redis. ZADD NX makes the push harmless when the id is already queued.
func (w *RecoverySweep) requeueOrphans(ctx context.Context, now time.Time) {
	jobs, err := w.jobsRepo.ListQueuedStalerThan(ctx, nil, now.Add(-w.orphanGrace), sweepBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale queued jobs failed")
		return
	}
	for _, job := range jobs {
		if err := w.queue.Enqueue(ctx, job.ID, now); err != nil {
			w.log.Warn().Err(err).Str("job_id", job.ID).Msg("orphan re-enqueue failed")
		}
	}
}

// finishRefunds completes credits that died between the failed or cancelled
// flip and the refund commit.
func (w *RecoverySweep) finishRefunds(ctx context.Context, now time.Time) {
	jobs, err := w.jobsRepo.ListUnrefundedOlderThan(ctx, nil, now.Add(-w.orphanGrace), sweepBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("list unrefunded jobs failed")
		return
	}
	for _, job := range jobs {
		job := job
		err := w.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if _, err := w.ledger.Credit(ctx, tx, job.UserID, job.Cost, model.LedgerReasonRefund, job.ID); err != nil {
				return err
			}
			_, err := w.jobsRepo.MarkRefunded(ctx, tx, job.ID)
			return err
		})
		if err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("refund repair failed")
			continue
		}
		metrics.IncJobSettled("refunded")
		w.log.Info().Str("job_id", job.ID).Int64("tokens", job.Cost).Msg("completed pending refund")
	}
}
