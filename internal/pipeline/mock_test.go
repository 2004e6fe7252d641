package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/infogenhq/infogen-engine/internal/domain"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestMockAnalyzeEmbedsTopic(t *testing.T) {
	t.Parallel()

	m := newMock(MockConfig{}, nil, noSleep)

	plan, err := m.Analyze(context.Background(), AnalyzeInput{Topic: "Solar Energy"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !strings.Contains(plan.Title, "Solar Energy") {
		t.Fatalf("title = %q, should contain the topic", plan.Title)
	}
	if len(plan.Sections) == 0 {
		t.Fatal("analysis should produce sections")
	}
	if len(plan.Palette) == 0 {
		t.Fatal("analysis should fall back to the default palette")
	}
}

func TestMockAnalyzeForcedFailure(t *testing.T) {
	t.Parallel()

	m := newMock(MockConfig{AnalysisErrorRate: 1.0}, nil, noSleep)

	_, err := m.Analyze(context.Background(), AnalyzeInput{Topic: "X"})
	if err == nil {
		t.Fatal("Analyze() expected error with error rate 1.0")
	}

	var pipelineErr *PipelineError
	if !errors.As(err, &pipelineErr) {
		t.Fatalf("error type = %T, want *PipelineError", err)
	}
	if !pipelineErr.Transient {
		t.Fatal("injected failures should be transient")
	}
}

func TestMockErrorRateZeroNeverFails(t *testing.T) {
	t.Parallel()

	m := newMock(MockConfig{}, func() float64 { return 0 }, noSleep)

	for i := 0; i < 20; i++ {
		if _, err := m.Generate(context.Background(), GenerateInput{
			Size:        domain.SizeMedium,
			AspectRatio: domain.RatioSquare,
		}); err != nil {
			t.Fatalf("Generate() error = %v with zero error rate", err)
		}
	}
}

func TestMockGenerateDimensions(t *testing.T) {
	t.Parallel()

	m := newMock(MockConfig{}, nil, noSleep)

	testCases := []struct {
		name       string
		size       domain.OutputSize
		ratio      domain.AspectRatio
		wantWidth  int
		wantHeight int
	}{
		{name: "medium square", size: domain.SizeMedium, ratio: domain.RatioSquare, wantWidth: 1024, wantHeight: 1024},
		{name: "small landscape", size: domain.SizeSmall, ratio: domain.RatioLandscape, wantWidth: 512, wantHeight: 288},
		{name: "large portrait", size: domain.SizeLarge, ratio: domain.RatioPortrait, wantWidth: 1152, wantHeight: 2048},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handle, err := m.Generate(context.Background(), GenerateInput{Size: tc.size, AspectRatio: tc.ratio})
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if handle.Width != tc.wantWidth || handle.Height != tc.wantHeight {
				t.Fatalf("dimensions = %dx%d, want %dx%d", handle.Width, handle.Height, tc.wantWidth, tc.wantHeight)
			}
			if handle.Format != "png" {
				t.Fatalf("format = %q, want png", handle.Format)
			}
		})
	}
}

func TestMockRateLimitErrors(t *testing.T) {
	t.Parallel()

	m := newMock(MockConfig{GenerationErrorRate: 1.0, RateLimitErrors: true}, nil, noSleep)

	_, err := m.Generate(context.Background(), GenerateInput{})
	if !IsRateLimited(err) {
		t.Fatalf("IsRateLimited() = false for %v, want true", err)
	}
	if !IsTransient(err) {
		t.Fatal("429 failures should classify as transient")
	}

	var pipelineErr *PipelineError
	if !errors.As(err, &pipelineErr) || pipelineErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %v, want 429", err)
	}
}

func TestMockRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	m := NewMock(MockConfig{AnalysisDelay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Analyze(ctx, AnalyzeInput{Topic: "X"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Analyze() error = %v, want context.Canceled", err)
	}
}
