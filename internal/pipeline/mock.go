package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/infogenhq/infogen-engine/internal/domain"
)

const (
	// Default simulated phase durations, mirroring what a real backend takes.
	DefaultAnalysisDelay   = 2 * time.Second
	DefaultGenerationDelay = 3 * time.Second
)

var defaultPalette = []string{"#1B365D", "#2E86AB", "#F5B841", "#E94F37"}

// MockConfig tunes the simulated backend.
type MockConfig struct {
	AnalysisDelay       time.Duration
	GenerationDelay     time.Duration
	AnalysisErrorRate   float64
	GenerationErrorRate float64
	// RateLimitErrors makes injected failures carry HTTP 429 so callers can
	// exercise the cooldown path.
	RateLimitErrors bool
}

// Mock simulates the two-phase generation service in-process with
// configurable per-phase delay and error rate. An error rate of 1.0 forces
// the phase to fail deterministically.
type Mock struct {
	cfg     MockConfig
	randFn  func() float64
	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewMock(cfg MockConfig) *Mock {
	return newMock(cfg, rand.Float64, sleepWithContext)
}

func newMock(cfg MockConfig, randFn func() float64, sleepFn func(ctx context.Context, d time.Duration) error) *Mock {
	if cfg.AnalysisDelay < 0 {
		cfg.AnalysisDelay = 0
	}
	if cfg.GenerationDelay < 0 {
		cfg.GenerationDelay = 0
	}
	if randFn == nil {
		randFn = rand.Float64
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &Mock{
		cfg:     cfg,
		randFn:  randFn,
		sleepFn: sleepFn,
	}
}

// ExpectedDuration returns the summed expected phase durations, used for
// estimated completion times.
func (m *Mock) ExpectedDuration() time.Duration {
	return m.cfg.AnalysisDelay + m.cfg.GenerationDelay
}

func (m *Mock) Analyze(ctx context.Context, input AnalyzeInput) (*domain.AnalysisResult, error) {
	if err := m.sleepFn(ctx, m.cfg.AnalysisDelay); err != nil {
		return nil, err
	}

	if m.shouldFail(m.cfg.AnalysisErrorRate) {
		return nil, m.injectedError("simulated analysis failure")
	}

	topic := strings.TrimSpace(input.Topic)
	palette := input.Palette
	if len(palette) == 0 {
		palette = defaultPalette
	}

	return &domain.AnalysisResult{
		Title:    fmt.Sprintf("%s: Key Insights", topic),
		Subtitle: fmt.Sprintf("A visual breakdown of %s", topic),
		Layout:   "vertical-sections",
		Palette:  palette,
		Sections: []domain.AnalysisSection{
			{
				Heading: "Overview",
				Body:    fmt.Sprintf("What %s is and why it matters.", topic),
				Icon:    "lightbulb",
			},
			{
				Heading: "By the Numbers",
				Body:    "Headline statistics presented as large figures.",
				Icon:    "chart-bar",
				Points:  []string{"adoption", "growth", "reach"},
			},
			{
				Heading: "Takeaways",
				Body:    "Three actionable conclusions for the reader.",
				Icon:    "check-circle",
			},
		},
	}, nil
}

func (m *Mock) Generate(ctx context.Context, input GenerateInput) (*domain.ImageHandle, error) {
	if err := m.sleepFn(ctx, m.cfg.GenerationDelay); err != nil {
		return nil, err
	}

	if m.shouldFail(m.cfg.GenerationErrorRate) {
		return nil, m.injectedError("simulated generation failure")
	}

	width, height := canvasDimensions(input.Size, input.AspectRatio)

	return &domain.ImageHandle{
		URL:    fmt.Sprintf("https://cdn.infogen.local/renders/%s.png", uuid.NewString()),
		Width:  width,
		Height: height,
		Format: "png",
	}, nil
}

func (m *Mock) shouldFail(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	return m.randFn() < rate
}

func (m *Mock) injectedError(message string) error {
	if m.cfg.RateLimitErrors {
		return &PipelineError{
			StatusCode: http.StatusTooManyRequests,
			Message:    message,
			Transient:  true,
		}
	}
	return &PipelineError{
		StatusCode: http.StatusBadGateway,
		Message:    message,
		Transient:  true,
	}
}

func canvasDimensions(size domain.OutputSize, ratio domain.AspectRatio) (int, int) {
	base := 1024
	switch size {
	case domain.SizeSmall:
		base = 512
	case domain.SizeLarge:
		base = 2048
	}

	switch ratio {
	case domain.RatioLandscape:
		return base, base * 9 / 16
	case domain.RatioPortrait:
		return base * 9 / 16, base
	case domain.RatioClassic:
		return base, base * 3 / 4
	case domain.RatioTall:
		return base * 3 / 4, base
	default:
		return base, base
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
