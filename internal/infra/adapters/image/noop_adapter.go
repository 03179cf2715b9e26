package image

import (
	"context"
	"log"
	"time"

	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.ImageProviderAdapter = (*NoopImageAdapter)(nil)

// NoopImageAdapter implements adapter.ImageProviderAdapter for local/dev
// testing. It logs the request and returns a fake result ref.
type NoopImageAdapter struct{}

func NewNoopImageAdapter() *NoopImageAdapter {
	return &NoopImageAdapter{}
}

func (a *NoopImageAdapter) Name() string { return "noop" }

func (a *NoopImageAdapter) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	log.Printf("[noop-image] job %s model %s prompt %q\n", req.JobID, req.Model, req.Prompt)
	return &adapter.ImageResult{ResultRef: "noop://" + req.JobID}, nil
}
