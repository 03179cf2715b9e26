package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.ImageProviderAdapter = (*OpenAIImageAdapter)(nil)

// OpenAIImageAdapter talks to the Images API. With a custom base URL it also
// serves OpenAI-compatible endpoints, which is how seedream models are wired.
type OpenAIImageAdapter struct {
	name       string
	client     openai.Client
	resultsDir string
	httpClient *http.Client
}

func NewOpenAIImageAdapter(name, apiKey, baseURL, resultsDir string) (*OpenAIImageAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("image provider api key empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIImageAdapter{
		name:       name,
		client:     openai.NewClient(opts...),
		resultsDir: resultsDir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (o *OpenAIImageAdapter) Name() string { return o.name }

func (o *OpenAIImageAdapter) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	var (
		url     string
		b64     string
		callErr error
	)

	if req.Type == "edit" {
		url, b64, callErr = o.edit(ctx, req)
	} else {
		url, b64, callErr = o.generate(ctx, req)
	}
	if callErr != nil {
		return nil, classify(o.name, callErr)
	}

	if url != "" {
		return &adapter.ImageResult{ResultRef: url}, nil
	}
	ref, err := o.store(req.JobID, b64)
	if err != nil {
		return nil, classify(o.name, err)
	}
	return &adapter.ImageResult{ResultRef: ref}, nil
}

func (o *OpenAIImageAdapter) generate(ctx context.Context, req adapter.ImageRequest) (string, string, error) {
	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(req.Model),
		N:      openai.Int(1),
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	if req.Quality != "" {
		params.Quality = openai.ImageGenerateParamsQuality(req.Quality)
	}
	resp, err := o.client.Images.Generate(ctx, params)
	if err != nil {
		return "", "", err
	}
	if len(resp.Data) == 0 {
		return "", "", errors.New("empty image response")
	}
	return resp.Data[0].URL, resp.Data[0].B64JSON, nil
}

func (o *OpenAIImageAdapter) edit(ctx context.Context, req adapter.ImageRequest) (string, string, error) {
	if len(req.SourceImages) == 0 {
		return "", "", &adapter.ProviderError{Reason: "edit without source images"}
	}
	sources := make([]io.Reader, 0, len(req.SourceImages))
	for i, ref := range req.SourceImages {
		b, err := o.fetch(ctx, ref)
		if err != nil {
			return "", "", fmt.Errorf("fetch source image %d: %w", i, err)
		}
		sources = append(sources, openai.File(bytes.NewReader(b), fmt.Sprintf("source-%d.png", i), "image/png"))
	}

	params := openai.ImageEditParams{
		Image:  openai.ImageEditParamsImageUnion{OfFileArray: sources},
		Prompt: req.Prompt,
		Model:  openai.ImageModel(req.Model),
		N:      openai.Int(1),
	}
	if req.Size != "" {
		params.Size = openai.ImageEditParamsSize(req.Size)
	}
	resp, err := o.client.Images.Edit(ctx, params)
	if err != nil {
		return "", "", err
	}
	if len(resp.Data) == 0 {
		return "", "", errors.New("empty image response")
	}
	return resp.Data[0].URL, resp.Data[0].B64JSON, nil
}

func (o *OpenAIImageAdapter) fetch(ctx context.Context, ref string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("source image http %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func (o *OpenAIImageAdapter) store(jobID, b64 string) (string, error) {
	if b64 == "" {
		return "", errors.New("image response carried neither url nor data")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode image data: %w", err)
	}
	if err := os.MkdirAll(o.resultsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(o.resultsDir, jobID+".png")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// classify maps SDK and transport errors onto the retry taxonomy. Rate
// limits, timeouts and server errors come back transient; 4xx rejections
// are final and trigger a refund upstream.
func classify(provider string, err error) error {
	var pe *adapter.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		transient := apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500
		out := &adapter.ProviderError{
			Transient: transient,
			Reason:    fmt.Sprintf("%s http %d: %s", provider, apierr.StatusCode, apierr.Message),
		}
		if ra := apierr.Response.Header.Get("Retry-After"); ra != "" {
			if d, perr := time.ParseDuration(ra + "s"); perr == nil {
				out.RetryAfter = d
			}
		}
		return out
	}
	// network-level or context errors: retryable
	return &adapter.ProviderError{Transient: true, Reason: fmt.Sprintf("%s: %v", provider, err)}
}
