package image

import (
	"context"
	"strings"

	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.ImageProviderAdapter = (*MultiImageAdapter)(nil)

// MultiImageAdapter routes each request to a provider by model name.
// Explicit config mappings win; otherwise the model prefix decides.
type MultiImageAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.ImageProviderAdapter
	modelToProvider map[string]string
}

func NewMultiImageAdapter(
	defaultProvider string,
	byProvider map[string]adapter.ImageProviderAdapter,
	modelToProvider map[string]string,
) *MultiImageAdapter {
	return &MultiImageAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiImageAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "imagen"), strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"):
		return "openai"
	case strings.HasPrefix(l, "seedream"):
		return "seedream"
	default:
		return m.defaultProvider
	}
}

func (m *MultiImageAdapter) pick(model string) adapter.ImageProviderAdapter {
	if a := m.byProvider[m.resolveProvider(model)]; a != nil {
		return a
	}
	// last resort: first available
	for _, a := range m.byProvider {
		if a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiImageAdapter) Name() string { return "multi" }

func (m *MultiImageAdapter) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	a := m.pick(req.Model)
	if a == nil {
		return nil, &adapter.ProviderError{Reason: "no provider configured for model " + req.Model}
	}
	return a.Generate(ctx, req)
}
