// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/repository"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase fronts the account repository with the retry and duplicate
// policy of the pipeline: concurrency conflicts are retried a bounded number
// of times, duplicate references are absorbed as no-ops and logged.
type LedgerUseCase interface {
	// EnsureAccount creates the account on first touch and applies the
	// signup grant exactly once.
	EnsureAccount(ctx context.Context, userID string, referrerID *string) (*model.Account, error)

	Debit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error)
	Credit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error)

	Balance(ctx context.Context, userID string) (*model.Account, error)
	History(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error)

	// AdminAdjust credits (positive delta) or debits (negative delta) an
	// account with reason admin_adjustment. The reference is caller-supplied
	// and deduplicates repeated submissions of the same adjustment.
	AdminAdjust(ctx context.Context, userID string, delta int64, referenceID string) (*model.Account, error)
}

const (
	conflictRetries = 3
	conflictBackoff = 25 * time.Millisecond
)

type ledgerUC struct {
	accounts    repository.AccountRepository
	signupGrant int64
	log         *zerolog.Logger
}

func NewLedgerUseCase(accounts repository.AccountRepository, signupGrant int64, log *zerolog.Logger) *ledgerUC {
	return &ledgerUC{accounts: accounts, signupGrant: signupGrant, log: log}
}

func (u *ledgerUC) EnsureAccount(ctx context.Context, userID string, referrerID *string) (*model.Account, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	acc, err := u.accounts.Ensure(ctx, nil, userID, referrerID)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	if u.signupGrant > 0 {
		// Reference keyed by user id, so the grant survives re-registration
		// attempts without ever doubling.
		acc, err = u.Credit(ctx, nil, userID, u.signupGrant, model.LedgerReasonAdminAdjust, "signup:"+userID)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (u *ledgerUC) Debit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	return u.apply(ctx, qx, func() (*model.Account, error) {
		return u.accounts.Debit(ctx, qx, userID, amount, reason, referenceID)
	}, userID, -amount, reason, referenceID)
}

func (u *ledgerUC) Credit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	return u.apply(ctx, qx, func() (*model.Account, error) {
		return u.accounts.Credit(ctx, qx, userID, amount, reason, referenceID)
	}, userID, amount, reason, referenceID)
}

// apply runs one ledger mutation with the shared conflict/duplicate policy.
// When qx carries a caller-owned transaction the conflict is surfaced
// immediately instead: the caller must retry its whole transaction, a
// half-retried one would be inconsistent.
func (u *ledgerUC) apply(ctx context.Context, qx any, op func() (*model.Account, error), userID string, delta int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: zero amount", domain.ErrInvalidArgument)
	}
	retries := conflictRetries
	if qx != nil {
		retries = 1
	}
	var acc *model.Account
	var err error
	for attempt := 0; attempt < retries; attempt++ {
		acc, err = op()
		if err == nil {
			return acc, nil
		}
		if errors.Is(err, domain.ErrDuplicateReference) {
			// Idempotent replay: the entry already exists, the balance
			// already reflects it. Absorb and report current state.
			u.log.Info().Str("user_id", userID).Str("reason", string(reason)).
				Str("reference_id", referenceID).Msg("duplicate ledger reference absorbed")
			return acc, nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, err
		}
		if attempt == retries-1 {
			break
		}
		sleep := conflictBackoff + time.Duration(rand.Int63n(int64(conflictBackoff*3)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, fmt.Errorf("ledger %s for %s: %w", reason, userID, domain.ErrConcurrencyConflict)
}

func (u *ledgerUC) Balance(ctx context.Context, userID string) (*model.Account, error) {
	return u.accounts.FindByUserID(ctx, nil, userID)
}

func (u *ledgerUC) History(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return u.accounts.ListEntries(ctx, nil, userID, limit)
}

func (u *ledgerUC) AdminAdjust(ctx context.Context, userID string, delta int64, referenceID string) (*model.Account, error) {
	if referenceID == "" {
		return nil, fmt.Errorf("%w: adjustment reference required", domain.ErrInvalidArgument)
	}
	if delta >= 0 {
		return u.Credit(ctx, nil, userID, delta, model.LedgerReasonAdminAdjust, referenceID)
	}
	return u.Debit(ctx, nil, userID, -delta, model.LedgerReasonAdminAdjust, referenceID)
}
