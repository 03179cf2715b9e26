//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/usecase"
)

func TestStatsUseCase_Snapshot(t *testing.T) {
	ctx := context.Background()
	jobs := newMemJobRepo()
	payments := newMemPaymentRepo()
	uc := usecase.NewStatsUseCase(jobs, payments)

	now := time.Now()
	for i, st := range []model.JobStatus{
		model.JobStatusQueued, model.JobStatusQueued, model.JobStatusSucceeded,
	} {
		job := &model.Job{
			ID:        "job-" + string(rune('a'+i)),
			UserID:    "u1",
			Status:    model.JobStatusQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := jobs.Create(ctx, nil, job); err != nil {
			t.Fatal(err)
		}
		if st == model.JobStatusSucceeded {
			if _, err := jobs.MarkLeased(ctx, nil, job.ID, "w1", now.Add(time.Minute)); err != nil {
				t.Fatal(err)
			}
			if _, err := jobs.MarkSucceeded(ctx, nil, job.ID, "ref"); err != nil {
				t.Fatal(err)
			}
		}
	}

	// One confirmed sale inside the week, one older than a month.
	if _, err := payments.Insert(ctx, nil, &model.Payment{
		ID: "pay-1", UserID: "u1", AmountTokens: 50,
		Status: model.PaymentStatusConfirmed, ReceivedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := payments.Insert(ctx, nil, &model.Payment{
		ID: "pay-2", UserID: "u1", AmountTokens: 500,
		Status: model.PaymentStatusConfirmed, ReceivedAt: now.AddDate(0, -2, 0), UpdatedAt: now.AddDate(0, -2, 0),
	}); err != nil {
		t.Fatal(err)
	}

	stats, err := uc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if stats.JobsByStatus[model.JobStatusQueued] != 2 {
		t.Fatalf("queued = %d, want 2", stats.JobsByStatus[model.JobStatusQueued])
	}
	if stats.JobsByStatus[model.JobStatusSucceeded] != 1 {
		t.Fatalf("succeeded = %d, want 1", stats.JobsByStatus[model.JobStatusSucceeded])
	}
	if stats.TokensSoldLastWeek != 50 {
		t.Fatalf("week = %d, want 50", stats.TokensSoldLastWeek)
	}
	if stats.TokensSoldLastMonth != 50 {
		t.Fatalf("month = %d, want 50", stats.TokensSoldLastMonth)
	}
}
