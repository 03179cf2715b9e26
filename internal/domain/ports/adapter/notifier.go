package adapter

import (
	"context"

	"telegram-image-ai/internal/domain/model"
)

// ResultNotifier delivers pipeline outcomes back to the user. Delivery is
// best-effort: a failed notification never fails the transaction that
// resolved the job or the payment.
type ResultNotifier interface {
	NotifyJobSucceeded(ctx context.Context, userID string, job *model.Job) error
	NotifyJobFailed(ctx context.Context, userID string, job *model.Job) error
	NotifyTokensCredited(ctx context.Context, userID string, tokens, newBalance int64) error
}
