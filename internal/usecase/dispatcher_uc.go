// File: internal/usecase/dispatcher_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
	"telegram-image-ai/internal/domain/ports/repository"
)

var _ DispatcherUseCase = (*dispatcherUC)(nil)

// DispatcherUseCase is the admission path: it prices a request, reserves the
// tokens, creates the job row, and enqueues it. Reservation and job creation
// commit atomically; the enqueue rides behind the commit and is repaired by
// the recovery sweep if lost.
type DispatcherUseCase interface {
	Submit(ctx context.Context, userID string, payload model.JobPayload) (*model.Job, error)
	Cancel(ctx context.Context, userID, jobID string) (*model.Job, error)
	JobStatus(ctx context.Context, userID, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, userID string, limit int) ([]*model.Job, error)
}

type dispatcherUC struct {
	jobs   repository.JobRepository
	ledger LedgerUseCase
	queue  adapter.JobQueue
	tm     repository.TransactionManager
	log    *zerolog.Logger
}

func NewDispatcherUseCase(
	jobs repository.JobRepository,
	ledger LedgerUseCase,
	queue adapter.JobQueue,
	tm repository.TransactionManager,
	log *zerolog.Logger,
) *dispatcherUC {
	return &dispatcherUC{jobs: jobs, ledger: ledger, queue: queue, tm: tm, log: log}
}

func (u *dispatcherUC) Submit(ctx context.Context, userID string, payload model.JobPayload) (*model.Job, error) {
	if err := ValidatePayload(&payload); err != nil {
		return nil, err
	}
	if _, err := u.ledger.EnsureAccount(ctx, userID, nil); err != nil {
		return nil, err
	}

	cost := CalculateCost(payload)
	now := time.Now()
	job := &model.Job{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Cost:      cost,
		Status:    model.JobStatusQueued,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Reservation and job row are one atomic unit: a job must never exist
	// without its reserve entry, and vice versa. A concurrency conflict
	// retries the whole transaction, never half of it.
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if _, err := u.ledger.Debit(ctx, tx, userID, cost, model.LedgerReasonReserve, job.ID); err != nil {
				return err
			}
			return u.jobs.Create(ctx, tx, job)
		})
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(conflictBackoff):
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("submit job: %w", err)
	}

	// Not transactional with the debit. A crash right here leaves a queued
	// job with no queue entry, which the recovery sweep re-enqueues after
	// the grace window.
	if err := u.queue.Enqueue(ctx, job.ID, now); err != nil {
		u.log.Warn().Err(err).Str("job_id", job.ID).Msg("enqueue failed; recovery sweep will retry")
	}

	u.log.Info().Str("job_id", job.ID).Str("user_id", userID).Int64("cost", cost).Msg("job admitted")
	return job, nil
}

// Cancel is a direct queued -> cancelled transition plus refund while the job
// is still waiting. After a lease it degrades to a recorded wish: the
// in-flight attempt finishes and whichever terminal transition lands first
// wins.
func (u *dispatcherUC) Cancel(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil, domain.ErrJobNotCancellable
	}

	won, err := u.jobs.MarkCancelled(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if !won {
		cur, err := u.jobs.FindByID(ctx, nil, jobID)
		if err != nil {
			return nil, err
		}
		if cur.Status != model.JobStatusCancelled {
			// Already leased (or resolved meanwhile): record the wish.
			if err := u.jobs.RequestCancel(ctx, nil, jobID); err != nil {
				return nil, err
			}
			u.log.Info().Str("job_id", jobID).Msg("cancel requested on in-flight job")
			return u.jobs.FindByID(ctx, nil, jobID)
		}
		// Cancelled but the refund never settled, a retry of a cancel whose
		// refund transaction failed. Fall through and finish it; the ledger's
		// reference key and the refunded CAS keep the credit single.
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.ledger.Credit(ctx, tx, job.UserID, job.Cost, model.LedgerReasonRefund, job.ID); err != nil {
			return err
		}
		_, err := u.jobs.MarkRefunded(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("refund cancelled job: %w", err)
	}
	u.log.Info().Str("job_id", jobID).Int64("tokens", job.Cost).Msg("job cancelled and refunded")
	return u.jobs.FindByID(ctx, nil, jobID)
}

func (u *dispatcherUC) JobStatus(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (u *dispatcherUC) ListJobs(ctx context.Context, userID string, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.jobs.ListByUser(ctx, nil, userID, limit)
}
