package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*AccountRepo)(nil)

// AccountRepo implements the ledger on Postgres. Balance changes run as a
// lock-read-append-update sequence against the account row; the ledger table
// is append-only and its (reason, reference_id) uniqueness carries the
// idempotency guarantee.
type AccountRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewAccountRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *AccountRepo {
	return &AccountRepo{pool: pool, tm: tm}
}

func (r *AccountRepo) Ensure(ctx context.Context, qx any, userID string, referrerID *string) (*model.Account, error) {
	const q = `
INSERT INTO accounts (user_id, balance, version, referrer_id, created_at, updated_at)
VALUES ($1, 0, 0, $2, now(), now())
ON CONFLICT (user_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, qx, q, userID, referrerID); err != nil {
		return nil, translateError(err)
	}
	return r.FindByUserID(ctx, qx, userID)
}

func (r *AccountRepo) FindByUserID(ctx context.Context, qx any, userID string) (*model.Account, error) {
	const q = `
SELECT user_id, balance, version, referrer_id, created_at, updated_at
  FROM accounts WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.UserID, &a.Balance, &a.Version, &a.ReferrerID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	return &a, nil
}

func (r *AccountRepo) Debit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: debit amount must be positive", domain.ErrInvalidArgument)
	}
	return r.mutate(ctx, qx, userID, -amount, reason, referenceID)
}

func (r *AccountRepo) Credit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidArgument)
	}
	return r.mutate(ctx, qx, userID, amount, reason, referenceID)
}

// mutate appends one ledger entry and moves the balance, atomically. With a
// caller-owned tx it runs inline; standalone it opens its own transaction.
func (r *AccountRepo) mutate(ctx context.Context, qx any, userID string, delta int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	if tx, ok := qx.(pgx.Tx); ok {
		return r.mutateInTx(ctx, tx, userID, delta, reason, referenceID)
	}
	var acc *model.Account
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var inner error
		acc, inner = r.mutateInTx(ctx, tx.(pgx.Tx), userID, delta, reason, referenceID)
		return inner
	})
	// Duplicate references roll the (empty) transaction back but must still
	// report the current state to the caller.
	if errors.Is(err, domain.ErrDuplicateReference) {
		acc, ferr := r.FindByUserID(ctx, nil, userID)
		if ferr != nil {
			return nil, ferr
		}
		return acc, err
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *AccountRepo) mutateInTx(ctx context.Context, tx pgx.Tx, userID string, delta int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	// Row lock serialises all mutations of one account; entries therefore
	// commit in a total order per user.
	row := tx.QueryRow(ctx, `
SELECT user_id, balance, version, referrer_id, created_at, updated_at
  FROM accounts WHERE user_id=$1 FOR UPDATE;`, userID)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, err
	}

	// Replay detection before any arithmetic: if the entry exists, the
	// balance already includes it.
	var exists bool
	if err := tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE reason=$1 AND reference_id=$2);`,
		string(reason), referenceID).Scan(&exists); err != nil {
		return nil, translateError(err)
	}
	if exists {
		return acc, domain.ErrDuplicateReference
	}

	newBalance := acc.Balance + delta
	if newBalance < 0 {
		return nil, fmt.Errorf("%w: need %d, have %d", domain.ErrInsufficientBalance, -delta, acc.Balance)
	}

	entry := model.LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Delta:        delta,
		Reason:       reason,
		ReferenceID:  referenceID,
		BalanceAfter: newBalance,
		CreatedAt:    time.Now(),
	}
	tag, err := tx.Exec(ctx, `
INSERT INTO ledger_entries (id, user_id, delta, reason, reference_id, balance_after, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (reason, reference_id) DO NOTHING;`,
		entry.ID, entry.UserID, entry.Delta, string(entry.Reason), entry.ReferenceID, entry.BalanceAfter, entry.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a race with a concurrent writer of the same reference.
		return acc, domain.ErrDuplicateReference
	}

	// Version guard backs up the row lock; a miss means someone slipped a
	// write between our read and update, which the lock should prevent.
	tag, err = tx.Exec(ctx, `
UPDATE accounts SET balance=$1, version=version+1, updated_at=now()
 WHERE user_id=$2 AND version=$3;`, newBalance, userID, acc.Version)
	if err != nil {
		return nil, translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrConcurrencyConflict
	}

	acc.Balance = newBalance
	acc.Version++
	acc.UpdatedAt = time.Now()
	return acc, nil
}

func (r *AccountRepo) ListEntries(ctx context.Context, qx any, userID string, limit int) ([]*model.LedgerEntry, error) {
	const q = `
SELECT id, user_id, delta, reason, reference_id, balance_after, created_at
  FROM ledger_entries
 WHERE user_id=$1
 ORDER BY created_at DESC, id DESC
 LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, qx, q, userID, limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var reason string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &reason, &e.ReferenceID, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, translateError(err)
		}
		e.Reason = model.LedgerReason(reason)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *AccountRepo) SumEntryDeltas(ctx context.Context, qx any, userID string) (int64, error) {
	row, err := pickRow(ctx, r.pool, qx, `
SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE user_id=$1;`, userID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, translateError(err)
	}
	return sum, nil
}
