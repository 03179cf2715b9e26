package model

import "time"

type LedgerReason string

const (
	LedgerReasonReserve       LedgerReason = "reserve"        // tokens held at job admission
	LedgerReasonRefund        LedgerReason = "refund"         // reservation returned after failure/cancel
	LedgerReasonPaymentCredit LedgerReason = "payment_credit" // confirmed payment top-up
	LedgerReasonAdminAdjust   LedgerReason = "admin_adjustment"
)

// LedgerEntry is an immutable record of one balance change. Entries are
// append-only; the (reason, reference_id) pair is unique and is the
// idempotency key that makes retried debits and credits no-ops.
type LedgerEntry struct {
	ID           string
	UserID       string
	Delta        int64 // signed token amount; negative for debits
	Reason       LedgerReason
	ReferenceID  string // job id, external payment id, or admin-supplied reference
	BalanceAfter int64
	CreatedAt    time.Time
}
