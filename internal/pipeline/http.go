package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/infogenhq/infogen-engine/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPPipeline talks to a real generation backend over REST. It exists for
// deployments that point the engine at a live service instead of the mock.
type HTTPPipeline struct {
	client  *resty.Client
	baseURL string
}

type analyzeRequest struct {
	Topic       string            `json:"topic"`
	Style       string            `json:"style,omitempty"`
	Palette     []string          `json:"palette,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	FileContent []byte            `json:"fileContent,omitempty"`
}

type generateRequest struct {
	Plan        domain.AnalysisResult `json:"plan"`
	Size        string                `json:"size"`
	AspectRatio string                `json:"aspectRatio"`
}

func NewHTTPPipeline(baseURL, apiKey string, timeout time.Duration, headers map[string]string) (*HTTPPipeline, error) {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, fmt.Errorf("pipeline base URL is required")
	}
	if _, err := url.ParseRequestURI(trimmedBase); err != nil {
		return nil, fmt.Errorf("invalid pipeline base URL: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("pipeline api key is required")
	}

	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	client.SetHeader("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	for key, value := range headers {
		client.SetHeader(key, value)
	}

	return &HTTPPipeline{
		client:  client,
		baseURL: trimmedBase,
	}, nil
}

func (p *HTTPPipeline) Analyze(ctx context.Context, input AnalyzeInput) (*domain.AnalysisResult, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("pipeline is not initialized")
	}

	var result domain.AnalysisResult
	if err := p.post(ctx, "/v1/analyze", analyzeRequest{
		Topic:       input.Topic,
		Style:       input.Style,
		Palette:     input.Palette,
		Filters:     input.Filters,
		FileContent: input.FileContent,
	}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (p *HTTPPipeline) Generate(ctx context.Context, input GenerateInput) (*domain.ImageHandle, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("pipeline is not initialized")
	}

	var handle domain.ImageHandle
	if err := p.post(ctx, "/v1/generate", generateRequest{
		Plan:        input.Plan,
		Size:        input.Size.String(),
		AspectRatio: input.AspectRatio.String(),
	}, &handle); err != nil {
		return nil, err
	}
	return &handle, nil
}

func (p *HTTPPipeline) post(ctx context.Context, path string, body any, out any) error {
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(out).
		Post(p.baseURL + path)
	if err != nil {
		return &PipelineError{
			Message:   "pipeline request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &PipelineError{
			Message:   "pipeline returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	responseBody := strings.TrimSpace(response.String())
	message := fmt.Sprintf("pipeline returned status %d", statusCode)
	if responseBody != "" {
		message = fmt.Sprintf("%s: %s", message, responseBody)
	}

	return &PipelineError{
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
