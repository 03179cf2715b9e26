package model

import "time"

// Account holds a user's spendable token balance. The balance is never
// written directly by callers: it only moves through ledger debits and
// credits, and must always equal the sum of the account's ledger entries.
type Account struct {
	UserID     string
	Balance    int64 // non-negative token count
	Version    int64 // optimistic concurrency counter, bumped on every mutation
	ReferrerID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewAccount(userID string, referrerID *string) *Account {
	now := time.Now()
	return &Account{
		UserID:     userID,
		Balance:    0,
		Version:    0,
		ReferrerID: referrerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
