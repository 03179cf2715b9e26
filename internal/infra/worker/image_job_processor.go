package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
	"telegram-image-ai/internal/domain/ports/repository"
	"telegram-image-ai/internal/infra/metrics"
	"telegram-image-ai/internal/usecase"
)

const (
	defaultLeaseTTL        = 2 * time.Minute
	defaultProviderTimeout = 90 * time.Second
)

// retryBackoff maps the attempt just failed to the delay before the next one;
// its length is the retry ceiling, so a job gets at most len+1 executions.
var retryBackoff = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// ImageJobProcessor drains the ready queue and drives each job through
// lease, provider call and settlement. The lease CAS on the jobs table is
// the single point that makes duplicate queue deliveries harmless.
type ImageJobProcessor struct {
	jobsRepo repository.JobRepository
	ledger   usecase.LedgerUseCase
	queue    adapter.JobQueue
	provider adapter.ImageProviderAdapter
	notifier adapter.ResultNotifier
	tm       repository.TransactionManager
	log      *zerolog.Logger

	instanceID      string
	leaseTTL        time.Duration
	providerTimeout time.Duration
}

func NewImageJobProcessor(
	jobsRepo repository.JobRepository,
	ledger usecase.LedgerUseCase,
	queue adapter.JobQueue,
	provider adapter.ImageProviderAdapter,
	notifier adapter.ResultNotifier,
	tm repository.TransactionManager,
	log *zerolog.Logger,
) *ImageJobProcessor {
	return &ImageJobProcessor{
		jobsRepo:        jobsRepo,
		ledger:          ledger,
		queue:           queue,
		provider:        provider,
		notifier:        notifier,
		tm:              tm,
		log:             log,
		instanceID:      uuid.NewString(),
		leaseTTL:        defaultLeaseTTL,
		providerTimeout: defaultProviderTimeout,
	}
}

// Start polls the queue and hands eligible jobs to the pool.
// This should be run in a goroutine.
func (p *ImageJobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Str("instance", p.instanceID).Msg("image job processor started")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("image job processor stopping")
			return
		case <-ticker.C:
			jobID, err := p.queue.Dequeue(ctx)
			if err != nil {
				if !errors.Is(err, domain.ErrQueueEmpty) {
					p.log.Error().Err(err).Msg("dequeue failed")
				}
				continue
			}
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx, jobID)
				return nil
			})
		}
	}
}

func (p *ImageJobProcessor) processOne(ctx context.Context, jobID string) {
	won, err := p.jobsRepo.MarkLeased(ctx, nil, jobID, p.instanceID, time.Now().Add(p.leaseTTL))
	if err != nil {
		p.log.Error().Err(err).Str("job_id", jobID).Msg("lease attempt failed")
		return
	}
	if !won {
		// already leased or settled elsewhere; stale queue entry
		return
	}

	job, err := p.jobsRepo.FindByID(ctx, nil, jobID)
	if err != nil {
		p.log.Error().Err(err).Str("job_id", jobID).Msg("leased job vanished")
		return
	}

	if job.CancelRequested {
		p.settleFailure(ctx, job, "cancelled before execution", false)
		return
	}

	p.log.Info().Str("job_id", job.ID).Str("model", job.Payload.Model).
		Int("attempt", job.AttemptCount+1).Msg("processing image job")
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	result, err := p.provider.Generate(callCtx, adapter.ImageRequest{
		JobID:        job.ID,
		Type:         string(job.Payload.Type),
		Prompt:       job.Payload.Prompt,
		SourceImages: job.Payload.SourceImages,
		Model:        job.Payload.Model,
		Quality:      job.Payload.Quality,
		Size:         job.Payload.Size,
	})
	cancel()
	latency := time.Since(start)

	if err != nil {
		metrics.ObserveProviderCall(p.provider.Name(), job.Payload.Model, int(latency/time.Millisecond), false)
		p.settleError(ctx, job, err)
		return
	}
	metrics.ObserveProviderCall(p.provider.Name(), job.Payload.Model, int(latency/time.Millisecond), true)

	won, err = p.jobsRepo.MarkSucceeded(ctx, nil, job.ID, result.ResultRef)
	if err != nil || !won {
		p.log.Error().Err(err).Bool("won", won).Str("job_id", job.ID).Msg("could not settle succeeded job")
		return
	}
	metrics.IncJobSettled("succeeded")
	p.log.Info().Str("job_id", job.ID).Dur("duration", latency).Msg("image job succeeded")

	job.Status = model.JobStatusSucceeded
	job.ResultRef = result.ResultRef
	if nerr := p.notifier.NotifyJobSucceeded(ctx, job.UserID, job); nerr != nil {
		p.log.Warn().Err(nerr).Str("job_id", job.ID).Msg("success notification failed")
	}
}

// settleError decides between retry and refund for a failed provider call.
func (p *ImageJobProcessor) settleError(ctx context.Context, job *model.Job, callErr error) {
	transient := adapter.Transient(callErr)
	attempt := job.AttemptCount + 1

	if transient && attempt <= len(retryBackoff) {
		won, err := p.jobsRepo.ReleaseForRetry(ctx, nil, job.ID, callErr.Error())
		if err != nil || !won {
			p.log.Error().Err(err).Bool("won", won).Str("job_id", job.ID).Msg("could not release job for retry")
			return
		}
		delay := retryBackoff[attempt-1]
		if hint := adapter.RetryAfterHint(callErr); hint > delay {
			delay = hint
		}
		if err := p.queue.Enqueue(ctx, job.ID, time.Now().Add(delay)); err != nil {
			// recovery sweep re-enqueues stale queued jobs
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("retry enqueue failed")
		}
		metrics.IncJobRetried()
		p.log.Warn().Err(callErr).Str("job_id", job.ID).Dur("backoff", delay).
			Int("attempt", attempt).Msg("transient provider error, will retry")
		return
	}

	reason := fmt.Sprintf("provider error: %v", callErr)
	if transient {
		reason = fmt.Sprintf("retries exhausted: %v", callErr)
	}
	p.settleFailure(ctx, job, reason, true)
}

// settleFailure moves a leased job to failed and returns its reserved
// tokens. The refund and the refunded flip commit together, keyed by the
// job id, so a crash between attempts cannot double-credit.
func (p *ImageJobProcessor) settleFailure(ctx context.Context, job *model.Job, reason string, notify bool) {
	won, err := p.jobsRepo.MarkFailed(ctx, nil, job.ID, reason)
	if err != nil || !won {
		p.log.Error().Err(err).Bool("won", won).Str("job_id", job.ID).Msg("could not mark job failed")
		return
	}
	metrics.IncJobSettled("failed")

	err = p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := p.ledger.Credit(ctx, tx, job.UserID, job.Cost, model.LedgerReasonRefund, job.ID); err != nil {
			return err
		}
		_, err := p.jobsRepo.MarkRefunded(ctx, tx, job.ID)
		return err
	})
	if err != nil {
		// job stays failed; the recovery sweep retries the refund
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("refund failed")
		return
	}
	metrics.IncJobSettled("refunded")
	p.log.Info().Str("job_id", job.ID).Int64("tokens", job.Cost).Str("reason", reason).Msg("job refunded")

	if notify {
		job.Status = model.JobStatusRefunded
		job.LastError = reason
		if nerr := p.notifier.NotifyJobFailed(ctx, job.UserID, job); nerr != nil {
			p.log.Warn().Err(nerr).Str("job_id", job.ID).Msg("failure notification failed")
		}
	}
}
