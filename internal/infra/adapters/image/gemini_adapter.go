package image

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/genai"

	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.ImageProviderAdapter = (*GeminiImageAdapter)(nil)

// GeminiImageAdapter generates images through the official SDK. It serves
// the imagen model family; edits are not supported there and come back as
// permanent errors so the tokens are refunded immediately.
type GeminiImageAdapter struct {
	client     *genai.Client
	resultsDir string
}

func NewGeminiImageAdapter(ctx context.Context, apiKey, baseURL, resultsDir string) (*GeminiImageAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiImageAdapter{client: c, resultsDir: resultsDir}, nil
}

func (g *GeminiImageAdapter) Name() string { return "gemini" }

func (g *GeminiImageAdapter) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	if req.Type == "edit" {
		return nil, &adapter.ProviderError{Reason: "gemini: image edit not supported"}
	}

	resp, err := g.client.Models.GenerateImages(ctx, req.Model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, classifyGenai(err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, &adapter.ProviderError{Transient: true, Reason: "gemini: empty image response"}
	}

	if err := os.MkdirAll(g.resultsDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(g.resultsDir, req.JobID+".png")
	if err := os.WriteFile(path, resp.GeneratedImages[0].Image.ImageBytes, 0o644); err != nil {
		return nil, err
	}
	return &adapter.ImageResult{ResultRef: path}, nil
}

func classifyGenai(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return &adapter.ProviderError{
			Transient: apierr.Code == 429 || apierr.Code >= 500,
			Reason:    fmt.Sprintf("gemini http %d: %s", apierr.Code, apierr.Message),
		}
	}
	return &adapter.ProviderError{Transient: true, Reason: fmt.Sprintf("gemini: %v", err)}
}
