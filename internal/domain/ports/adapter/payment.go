package adapter

import (
	"context"

	"telegram-image-ai/internal/domain/model"
)

// PaymentGateway creates payments on the external provider and polls their
// status. Confirmation normally arrives through the webhook; FetchStatus
// backs the stale-payment sweep when the webhook was lost.
type PaymentGateway interface {
	Name() string

	// CreatePayment registers a payment intent for the package and returns
	// the provider's payment id and the user-facing confirmation URL.
	CreatePayment(ctx context.Context, userID string, pkg model.TokenPackage, description string) (externalID, confirmURL string, err error)

	// FetchStatus returns the provider-side status of a payment.
	FetchStatus(ctx context.Context, externalID string) (model.PaymentStatus, error)
}
