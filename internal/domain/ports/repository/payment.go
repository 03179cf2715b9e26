package repository

import (
	"context"
	"time"

	"telegram-image-ai/internal/domain/model"
)

// PaymentRepository stores provider payments keyed by the external payment
// id. Status moves are conditional updates so two handler instances racing on
// the same webhook resolve to exactly one winner.
type PaymentRepository interface {
	// Insert stores the payment; a no-op when the external id already exists.
	// Returns true when the row was actually inserted.
	Insert(ctx context.Context, qx any, p *model.Payment) (bool, error)

	FindByID(ctx context.Context, qx any, id string) (*model.Payment, error)

	// MarkConfirmedIfPending flips pending -> confirmed; false when the
	// payment was already confirmed or rejected.
	MarkConfirmedIfPending(ctx context.Context, qx any, id string) (bool, error)

	// MarkRejectedIfPending flips pending -> rejected.
	MarkRejectedIfPending(ctx context.Context, qx any, id string) (bool, error)

	ListPendingOlderThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Payment, error)

	// SumTokensConfirmedSince totals tokens credited via confirmed payments
	// in the period, for the admin stats surface.
	SumTokensConfirmedSince(ctx context.Context, qx any, since time.Time) (int64, error)
}
