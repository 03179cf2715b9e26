package telegram

import (
	"context"
	"log"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.ResultNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs notifications instead of sending them. Used in tests
// and when no bot token is configured.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (NoopNotifier) NotifyJobSucceeded(ctx context.Context, userID string, job *model.Job) error {
	log.Printf("[noop-notify] user %s job %s succeeded: %s\n", userID, job.ID, job.ResultRef)
	return nil
}

func (NoopNotifier) NotifyJobFailed(ctx context.Context, userID string, job *model.Job) error {
	log.Printf("[noop-notify] user %s job %s failed: %s\n", userID, job.ID, job.LastError)
	return nil
}

func (NoopNotifier) NotifyTokensCredited(ctx context.Context, userID string, tokens, newBalance int64) error {
	log.Printf("[noop-notify] user %s credited %d tokens, balance %d\n", userID, tokens, newBalance)
	return nil
}
