package repository

import (
	"context"

	"telegram-image-ai/internal/domain/model"
)

// AccountRepository is the single write path to token balances. Debit and
// Credit atomically append a ledger entry and move the balance inside one
// row-locked statement sequence; the (reason, reference_id) uniqueness
// constraint makes both idempotent under retries.
type AccountRepository interface {
	// Ensure creates the account with a zero balance if it does not exist
	// and returns it. Safe to call concurrently.
	Ensure(ctx context.Context, qx any, userID string, referrerID *string) (*model.Account, error)

	FindByUserID(ctx context.Context, qx any, userID string) (*model.Account, error)

	// Debit appends a negative ledger entry and decrements the balance.
	// Returns domain.ErrInsufficientBalance when amount exceeds the current
	// balance, and domain.ErrDuplicateReference (with the current account)
	// when an entry for (reason, referenceID) already exists.
	Debit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error)

	// Credit is symmetric to Debit with a positive delta. Same duplicate
	// semantics.
	Credit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error)

	// ListEntries returns the account's ledger history, newest first.
	ListEntries(ctx context.Context, qx any, userID string, limit int) ([]*model.LedgerEntry, error)

	// SumEntryDeltas folds all entry deltas for the account. Used by the
	// conservation check and admin stats; must equal the stored balance.
	SumEntryDeltas(ctx context.Context, qx any, userID string) (int64, error)
}
