//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"telegram-image-ai/internal/domain/model"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	tm := NewTxManager(testPool)
	repo := NewJobRepo(testPool, tm)
	accounts := NewAccountRepo(testPool, tm)

	newJob := func(t *testing.T, id string) *model.Job {
		t.Helper()
		now := time.Now()
		job := &model.Job{
			ID:     id,
			UserID: "u1",
			Cost:   5,
			Status: model.JobStatusQueued,
			Payload: model.JobPayload{
				Version: 1,
				Type:    model.JobTypeGenerate,
				Prompt:  "a fox in the snow",
				Model:   "gpt-image-1",
				Quality: "medium",
				Size:    "1024x1024",
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.Create(ctx, nil, job); err != nil {
			t.Fatalf("create job: %v", err)
		}
		return job
	}

	setup := func(t *testing.T) {
		cleanup(t)
		if _, err := accounts.Ensure(ctx, nil, "u1", nil); err != nil {
			t.Fatalf("ensure account: %v", err)
		}
	}

	t.Run("create and find round-trips the payload", func(t *testing.T) {
		setup(t)
		job := newJob(t, "job-1")

		got, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Payload.Prompt != job.Payload.Prompt || got.Payload.Type != model.JobTypeGenerate {
			t.Fatalf("payload = %+v", got.Payload)
		}
		if got.Status != model.JobStatusQueued || got.AttemptCount != 0 {
			t.Fatalf("job = %+v", got)
		}
	})

	t.Run("lease transition admits exactly one claimant", func(t *testing.T) {
		setup(t)
		job := newJob(t, "job-1")
		until := time.Now().Add(2 * time.Minute)

		won, err := repo.MarkLeased(ctx, nil, job.ID, "worker-a", until)
		if err != nil || !won {
			t.Fatalf("first lease won=%v err=%v", won, err)
		}
		won, err = repo.MarkLeased(ctx, nil, job.ID, "worker-b", until)
		if err != nil {
			t.Fatalf("second lease: %v", err)
		}
		if won {
			t.Fatal("second claimant must lose the lease CAS")
		}

		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.LeaseOwner != "worker-a" || got.LeaseExpiresAt == nil {
			t.Fatalf("job = %+v", got)
		}
	})

	t.Run("full failure path: leased -> failed -> refunded", func(t *testing.T) {
		setup(t)
		job := newJob(t, "job-1")
		_, _ = repo.MarkLeased(ctx, nil, job.ID, "w", time.Now().Add(time.Minute))

		won, err := repo.MarkFailed(ctx, nil, job.ID, "provider said no")
		if err != nil || !won {
			t.Fatalf("mark failed won=%v err=%v", won, err)
		}
		// Only failed or cancelled jobs can flip to refunded.
		won, err = repo.MarkRefunded(ctx, nil, job.ID)
		if err != nil || !won {
			t.Fatalf("mark refunded won=%v err=%v", won, err)
		}
		// Refunded is terminal.
		won, _ = repo.MarkRefunded(ctx, nil, job.ID)
		if won {
			t.Fatal("double refund transition must lose")
		}

		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.Status != model.JobStatusRefunded || got.LastError != "provider said no" {
			t.Fatalf("job = %+v", got)
		}
	})

	t.Run("release for retry requeues and counts the attempt", func(t *testing.T) {
		setup(t)
		job := newJob(t, "job-1")
		_, _ = repo.MarkLeased(ctx, nil, job.ID, "w", time.Now().Add(time.Minute))

		won, err := repo.ReleaseForRetry(ctx, nil, job.ID, "rate limited")
		if err != nil || !won {
			t.Fatalf("release won=%v err=%v", won, err)
		}
		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.Status != model.JobStatusQueued || got.AttemptCount != 1 || got.LeaseOwner != "" {
			t.Fatalf("job = %+v", got)
		}
	})

	t.Run("cancel only wins while queued", func(t *testing.T) {
		setup(t)
		job := newJob(t, "job-1")

		won, err := repo.MarkCancelled(ctx, nil, job.ID)
		if err != nil || !won {
			t.Fatalf("cancel won=%v err=%v", won, err)
		}

		other := newJob(t, "job-2")
		_, _ = repo.MarkLeased(ctx, nil, other.ID, "w", time.Now().Add(time.Minute))
		won, _ = repo.MarkCancelled(ctx, nil, other.ID)
		if won {
			t.Fatal("cancel on a leased job must lose")
		}
		if err := repo.RequestCancel(ctx, nil, other.ID); err != nil {
			t.Fatalf("request cancel: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, other.ID)
		if !got.CancelRequested || got.Status != model.JobStatusLeased {
			t.Fatalf("job = %+v", got)
		}
	})

	t.Run("expired leases are reclaimed to queued", func(t *testing.T) {
		setup(t)
		dead := newJob(t, "job-dead")
		alive := newJob(t, "job-alive")
		_, _ = repo.MarkLeased(ctx, nil, dead.ID, "w1", time.Now().Add(-time.Minute))
		_, _ = repo.MarkLeased(ctx, nil, alive.ID, "w2", time.Now().Add(time.Hour))

		reclaimed, err := repo.ReclaimExpiredLeases(ctx, nil, time.Now(), 10)
		if err != nil {
			t.Fatalf("reclaim: %v", err)
		}
		if len(reclaimed) != 1 || reclaimed[0].ID != dead.ID {
			t.Fatalf("reclaimed = %+v", reclaimed)
		}
		if reclaimed[0].Status != model.JobStatusQueued || reclaimed[0].AttemptCount != 1 {
			t.Fatalf("reclaimed job = %+v", reclaimed[0])
		}

		got, _ := repo.FindByID(ctx, nil, alive.ID)
		if got.Status != model.JobStatusLeased {
			t.Fatal("live lease must not be reclaimed")
		}
	})

	t.Run("stale queued and unrefunded jobs are listable", func(t *testing.T) {
		setup(t)
		stale := newJob(t, "job-stale")
		failed := newJob(t, "job-failed")
		cancelled := newJob(t, "job-cancelled")
		_, _ = repo.MarkLeased(ctx, nil, failed.ID, "w", time.Now().Add(time.Minute))
		_, _ = repo.MarkFailed(ctx, nil, failed.ID, "boom")
		_, _ = repo.MarkCancelled(ctx, nil, cancelled.ID)

		// Backdate all three so the cutoff catches them.
		if _, err := testPool.Exec(ctx, `UPDATE jobs SET updated_at = now() - interval '10 minutes' WHERE id = ANY($1)`,
			[]string{stale.ID, failed.ID, cancelled.ID}); err != nil {
			t.Fatal(err)
		}

		queued, err := repo.ListQueuedStalerThan(ctx, nil, time.Now().Add(-time.Minute), 10)
		if err != nil || len(queued) != 1 || queued[0].ID != stale.ID {
			t.Fatalf("queued = %+v, err = %v", queued, err)
		}
		unrefunded, err := repo.ListUnrefundedOlderThan(ctx, nil, time.Now().Add(-time.Minute), 10)
		if err != nil || len(unrefunded) != 2 {
			t.Fatalf("unrefunded = %+v, err = %v", unrefunded, err)
		}
		seen := map[string]bool{}
		for _, j := range unrefunded {
			seen[j.ID] = true
		}
		if !seen[failed.ID] || !seen[cancelled.ID] {
			t.Fatalf("unrefunded ids = %v", seen)
		}
	})

	t.Run("count by status", func(t *testing.T) {
		setup(t)
		newJob(t, "job-1")
		newJob(t, "job-2")
		succ := newJob(t, "job-3")
		_, _ = repo.MarkLeased(ctx, nil, succ.ID, "w", time.Now().Add(time.Minute))
		_, _ = repo.MarkSucceeded(ctx, nil, succ.ID, "file://x.png")

		counts, err := repo.CountByStatus(ctx, nil)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if counts[model.JobStatusQueued] != 2 || counts[model.JobStatusSucceeded] != 1 {
			t.Fatalf("counts = %v", counts)
		}
	})
}
