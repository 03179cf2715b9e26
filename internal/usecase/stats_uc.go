// File: internal/usecase/stats_uc.go
package usecase

import (
	"context"
	"time"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/repository"
)

var _ StatsUseCase = (*statsUC)(nil)

// Stats is the read-only operational snapshot served on the admin surface.
type Stats struct {
	JobsByStatus        map[model.JobStatus]int64 `json:"jobs_by_status"`
	TokensSoldLastWeek  int64                     `json:"tokens_sold_last_week"`
	TokensSoldLastMonth int64                     `json:"tokens_sold_last_month"`
}

type StatsUseCase interface {
	Snapshot(ctx context.Context) (*Stats, error)
}

type statsUC struct {
	jobs     repository.JobRepository
	payments repository.PaymentRepository
}

func NewStatsUseCase(jobs repository.JobRepository, payments repository.PaymentRepository) *statsUC {
	return &statsUC{jobs: jobs, payments: payments}
}

func (u *statsUC) Snapshot(ctx context.Context) (*Stats, error) {
	byStatus, err := u.jobs.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	week, err := u.payments.SumTokensConfirmedSince(ctx, nil, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	month, err := u.payments.SumTokensConfirmedSince(ctx, nil, now.AddDate(0, -1, 0))
	if err != nil {
		return nil, err
	}
	return &Stats{
		JobsByStatus:        byStatus,
		TokensSoldLastWeek:  week,
		TokensSoldLastMonth: month,
	}, nil
}
