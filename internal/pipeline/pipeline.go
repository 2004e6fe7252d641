// Package pipeline defines the two-phase generation service boundary:
// topic analysis followed by image synthesis. Implementations live behind
// the Pipeline interface; the orchestrators never see transport details.
package pipeline

import (
	"context"

	"github.com/infogenhq/infogen-engine/internal/domain"
)

// AnalyzeInput carries everything the analysis phase needs.
type AnalyzeInput struct {
	Topic       string
	Style       string
	Palette     []string
	Filters     map[string]string
	FileContent []byte
}

// GenerateInput carries the visual plan into the image synthesis phase.
type GenerateInput struct {
	Plan        domain.AnalysisResult
	Size        domain.OutputSize
	AspectRatio domain.AspectRatio
}

// Pipeline is the two-phase generation service. Both calls may fail with
// arbitrary errors; callers normalize them into the structured job error
// taxonomy.
type Pipeline interface {
	Analyze(ctx context.Context, input AnalyzeInput) (*domain.AnalysisResult, error)
	Generate(ctx context.Context, input GenerateInput) (*domain.ImageHandle, error)
}
