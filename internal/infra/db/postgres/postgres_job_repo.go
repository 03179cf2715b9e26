package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo persists jobs with every status change expressed as a conditional
// UPDATE guarded by the expected current status. RowsAffected tells the
// caller whether it won the transition.
type JobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *JobRepo {
	return &JobRepo{pool: pool, tm: tm}
}

const jobColumns = `
id, user_id, cost, status, payload, result_ref, lease_owner, lease_expires_at,
attempt_count, cancel_requested, last_error, created_at, updated_at`

func (r *JobRepo) Create(ctx context.Context, qx any, job *model.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	const q = `
INSERT INTO jobs (id, user_id, cost, status, payload, result_ref, lease_owner,
                  lease_expires_at, attempt_count, cancel_requested, last_error,
                  created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,'','',NULL,0,false,'',$6,$7);`
	_, err = execSQL(ctx, r.pool, qx, q,
		job.ID, job.UserID, job.Cost, string(job.Status), payload, job.CreatedAt, job.UpdatedAt)
	return translateError(err)
}

func (r *JobRepo) FindByID(ctx context.Context, qx any, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, qx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status string
	var payload []byte
	if err := row.Scan(&j.ID, &j.UserID, &j.Cost, &status, &payload, &j.ResultRef,
		&j.LeaseOwner, &j.LeaseExpiresAt, &j.AttemptCount, &j.CancelRequested,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	j.Status = model.JobStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of job %s: %w", j.ID, err)
		}
	}
	return &j, nil
}

func (r *JobRepo) ListByUser(ctx context.Context, qx any, userID string, limit int) ([]*model.Job, error) {
	rows, err := pickRows(ctx, r.pool, qx, `
SELECT `+jobColumns+` FROM jobs WHERE user_id=$1 ORDER BY id DESC LIMIT $2;`, userID, limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*model.Job, error) {
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// transition runs one guarded status move and reports whether it applied.
func (r *JobRepo) transition(ctx context.Context, qx any, q string, args ...interface{}) (bool, error) {
	tag, err := execSQL(ctx, r.pool, qx, q, args...)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepo) MarkLeased(ctx context.Context, qx any, id, owner string, leaseUntil time.Time) (bool, error) {
	const q = `
UPDATE jobs SET status='leased', lease_owner=$2, lease_expires_at=$3, updated_at=now()
 WHERE id=$1 AND status='queued';`
	return r.transition(ctx, qx, q, id, owner, leaseUntil)
}

func (r *JobRepo) MarkSucceeded(ctx context.Context, qx any, id, resultRef string) (bool, error) {
	const q = `
UPDATE jobs SET status='succeeded', result_ref=$2, lease_owner='', lease_expires_at=NULL, updated_at=now()
 WHERE id=$1 AND status='leased';`
	return r.transition(ctx, qx, q, id, resultRef)
}

func (r *JobRepo) MarkFailed(ctx context.Context, qx any, id, lastError string) (bool, error) {
	const q = `
UPDATE jobs SET status='failed', last_error=$2, lease_owner='', lease_expires_at=NULL, updated_at=now()
 WHERE id=$1 AND status='leased';`
	return r.transition(ctx, qx, q, id, truncateErr(lastError))
}

func (r *JobRepo) MarkRefunded(ctx context.Context, qx any, id string) (bool, error) {
	const q = `
UPDATE jobs SET status='refunded', updated_at=now()
 WHERE id=$1 AND status IN ('failed','cancelled');`
	return r.transition(ctx, qx, q, id)
}

func (r *JobRepo) MarkCancelled(ctx context.Context, qx any, id string) (bool, error) {
	const q = `
UPDATE jobs SET status='cancelled', cancel_requested=true, updated_at=now()
 WHERE id=$1 AND status='queued';`
	return r.transition(ctx, qx, q, id)
}

func (r *JobRepo) RequestCancel(ctx context.Context, qx any, id string) error {
	const q = `UPDATE jobs SET cancel_requested=true, updated_at=now() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, qx, q, id)
	return translateError(err)
}

func (r *JobRepo) ReleaseForRetry(ctx context.Context, qx any, id, lastError string) (bool, error) {
	const q = `
UPDATE jobs SET status='queued', lease_owner='', lease_expires_at=NULL,
       attempt_count=attempt_count+1, last_error=$2, updated_at=now()
 WHERE id=$1 AND status='leased';`
	return r.transition(ctx, qx, q, id, truncateErr(lastError))
}

// ReclaimExpiredLeases returns dead workers' jobs to the queue. SKIP LOCKED
// keeps concurrent sweep instances from fighting over the same rows.
func (r *JobRepo) ReclaimExpiredLeases(ctx context.Context, qx any, now time.Time, limit int) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		t := tx.(pgx.Tx)
		rows, err := t.Query(ctx, `
SELECT id FROM jobs
 WHERE status='leased' AND lease_expires_at < $1
 ORDER BY lease_expires_at
 LIMIT $2
 FOR UPDATE SKIP LOCKED;`, now, limit)
		if err != nil {
			return translateError(err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return translateError(err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return translateError(err)
		}

		for _, id := range ids {
			row := t.QueryRow(ctx, `
UPDATE jobs SET status='queued', lease_owner='', lease_expires_at=NULL,
       attempt_count=attempt_count+1, updated_at=now()
 WHERE id=$1 AND status='leased'
RETURNING `+jobColumns+`;`, id)
			j, err := scanJob(row)
			if err != nil {
				return err
			}
			jobs = append(jobs, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *JobRepo) ListQueuedStalerThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Job, error) {
	rows, err := pickRows(ctx, r.pool, qx, `
SELECT `+jobColumns+` FROM jobs
 WHERE status='queued' AND updated_at < $1
 ORDER BY updated_at
 LIMIT $2;`, cutoff, limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *JobRepo) ListUnrefundedOlderThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Job, error) {
	rows, err := pickRows(ctx, r.pool, qx, `
SELECT `+jobColumns+` FROM jobs
 WHERE status IN ('failed','cancelled') AND updated_at < $1
 ORDER BY updated_at
 LIMIT $2;`, cutoff, limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *JobRepo) CountByStatus(ctx context.Context, qx any) (map[model.JobStatus]int64, error) {
	rows, err := pickRows(ctx, r.pool, qx, `SELECT status, COUNT(*) FROM jobs GROUP BY status;`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	out := make(map[model.JobStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, translateError(err)
		}
		out[model.JobStatus(status)] = n
	}
	return out, rows.Err()
}

func truncateErr(s string) string {
	const max = 500
	if len(s) > max {
		return s[:max]
	}
	return s
}
