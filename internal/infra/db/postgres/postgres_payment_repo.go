package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*PaymentRepo)(nil)

type PaymentRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewPaymentRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *PaymentRepo {
	return &PaymentRepo{pool: pool, tm: tm}
}

const paymentColumns = `
id, user_id, package, amount_tokens, amount_value, status, confirm_url, received_at, updated_at`

// Insert records a payment the first time it is seen. It reports false when
// the external id is already known, leaving the stored row untouched.
func (r *PaymentRepo) Insert(ctx context.Context, qx any, p *model.Payment) (bool, error) {
	const q = `
INSERT INTO payments (id, user_id, package, amount_tokens, amount_value, status,
                      confirm_url, received_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, qx, q,
		p.ID, p.UserID, p.Package, p.AmountTokens, p.AmountValue,
		string(p.Status), p.ConfirmURL, p.ReceivedAt, p.UpdatedAt)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) FindByID(ctx context.Context, qx any, id string) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, qx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var status string
	if err := row.Scan(&p.ID, &p.UserID, &p.Package, &p.AmountTokens, &p.AmountValue,
		&status, &p.ConfirmURL, &p.ReceivedAt, &p.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

func (r *PaymentRepo) MarkConfirmedIfPending(ctx context.Context, qx any, id string) (bool, error) {
	const q = `
UPDATE payments SET status='confirmed', updated_at=now()
 WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, qx, q, id)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) MarkRejectedIfPending(ctx context.Context, qx any, id string) (bool, error) {
	const q = `
UPDATE payments SET status='rejected', updated_at=now()
 WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, qx, q, id)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) ListPendingOlderThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Payment, error) {
	rows, err := pickRows(ctx, r.pool, qx, `
SELECT `+paymentColumns+` FROM payments
 WHERE status='pending' AND received_at < $1
 ORDER BY received_at
 LIMIT $2;`, cutoff, limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PaymentRepo) SumTokensConfirmedSince(ctx context.Context, qx any, since time.Time) (int64, error) {
	row, err := pickRow(ctx, r.pool, qx, `
SELECT COALESCE(SUM(amount_tokens), 0) FROM payments
 WHERE status='confirmed' AND updated_at >= $1;`, since)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, translateError(err)
	}
	return sum, nil
}
