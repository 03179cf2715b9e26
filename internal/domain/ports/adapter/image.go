package adapter

import (
	"context"
	"errors"
	"time"
)

// ImageRequest is what a worker hands to the external generation provider.
// JobID names the stored output; Type selects generation versus edit.
type ImageRequest struct {
	JobID        string
	Type         string
	Prompt       string
	SourceImages []string
	Model        string
	Quality      string
	Size         string
}

// ImageResult carries the opaque pointer to the stored output.
type ImageResult struct {
	ResultRef string
}

// ProviderError classifies a failed generation call. Transient failures
// (rate limits, timeouts, 5xx) are retried by the worker up to the attempt
// cap; permanent ones (invalid request, content policy) trigger a refund.
type ProviderError struct {
	Transient  bool
	RetryAfter time.Duration // optional provider hint, zero when absent
	Reason     string
}

func (e *ProviderError) Error() string { return e.Reason }

// Transient reports whether err is a retryable provider failure. Unknown
// error types (network-level, context deadline) count as transient: the
// reservation is only consumed once the provider definitively rejects.
func Transient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return true
}

// RetryAfterHint extracts the provider's retry-after hint, if any.
func RetryAfterHint(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// ImageProviderAdapter is the opaque generation call of the pipeline. The
// context carries the mandatory timeout, which must be shorter than the job
// lease duration.
type ImageProviderAdapter interface {
	Name() string
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}
