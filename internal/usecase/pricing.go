// File: internal/usecase/pricing.go
package usecase

import (
	"fmt"
	"strings"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
)

// Token costs are table-driven per quality. Size never affects the user-facing
// price, only the provider-side spend.

var gptTokenCosts = map[string]int64{
	"low":    2,
	"medium": 5,
	"high":   20,
}

var seedreamTokenCosts = map[string]int64{
	"2k": 5,
	"4k": 5,
}

var validSizes = map[string]bool{
	"1024x1024": true,
	"1024x1536": true,
	"1536x1024": true,
}

const (
	maxPromptLen    = 2000
	maxSourceImages = 10
)

// IsSeedreamModel reports whether the model bills on the SeeDream table.
func IsSeedreamModel(m string) bool {
	return strings.HasPrefix(strings.ToLower(m), "seedream")
}

// DefaultQuality returns the quality used when a request leaves it empty.
func DefaultQuality(m string) string {
	if IsSeedreamModel(m) {
		return "2k"
	}
	return "medium"
}

// extraImagesCost prices additional source images on edit requests:
// up to 3 are included, 4-6 add one token, 7-10 add two.
func extraImagesCost(n int) int64 {
	switch {
	case n <= 3:
		return 0
	case n <= 6:
		return 1
	default:
		return 2
	}
}

// CalculateCost returns the token cost of a validated payload.
func CalculateCost(p model.JobPayload) int64 {
	costs := gptTokenCosts
	if IsSeedreamModel(p.Model) {
		costs = seedreamTokenCosts
	}
	base, ok := costs[p.Quality]
	if !ok {
		base = costs[DefaultQuality(p.Model)]
	}
	return base + extraImagesCost(len(p.SourceImages))
}

// ValidatePayload checks a decoded request once, at the admission boundary.
// Workers trust the stored payload afterwards.
func ValidatePayload(p *model.JobPayload) error {
	if p.Version <= 0 {
		p.Version = 1
	}
	switch p.Type {
	case model.JobTypeGenerate, model.JobTypeEdit:
	default:
		return fmt.Errorf("%w: unknown job type %q", domain.ErrInvalidArgument, p.Type)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", domain.ErrInvalidArgument)
	}
	if len(p.Prompt) > maxPromptLen {
		return fmt.Errorf("%w: prompt exceeds %d characters", domain.ErrInvalidArgument, maxPromptLen)
	}
	if p.Type == model.JobTypeEdit && len(p.SourceImages) == 0 {
		return fmt.Errorf("%w: edit request needs at least one source image", domain.ErrInvalidArgument)
	}
	if len(p.SourceImages) > maxSourceImages {
		return fmt.Errorf("%w: at most %d source images", domain.ErrInvalidArgument, maxSourceImages)
	}
	if p.Quality == "" {
		p.Quality = DefaultQuality(p.Model)
	}
	if !validQuality(p.Model, p.Quality) {
		return fmt.Errorf("%w: quality %q not valid for model %q", domain.ErrInvalidArgument, p.Quality, p.Model)
	}
	if p.Size == "" {
		p.Size = "1024x1024"
	}
	if !validSizes[p.Size] {
		return fmt.Errorf("%w: size %q", domain.ErrInvalidArgument, p.Size)
	}
	return nil
}

func validQuality(model, quality string) bool {
	if IsSeedreamModel(model) {
		_, ok := seedreamTokenCosts[quality]
		return ok
	}
	_, ok := gptTokenCosts[quality]
	return ok
}

// ConvertQuality maps a quality setting when the user switches model family,
// preserving intent rather than the literal value.
func ConvertQuality(quality, targetModel string) string {
	if IsSeedreamModel(targetModel) {
		switch quality {
		case "high":
			return "4k"
		default:
			return "2k"
		}
	}
	switch quality {
	case "4k":
		return "high"
	case "2k":
		return "medium"
	default:
		if _, ok := gptTokenCosts[quality]; ok {
			return quality
		}
		return "medium"
	}
}
