package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/infogenhq/infogen-engine/internal/client"
	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/pipeline"
	"github.com/infogenhq/infogen-engine/internal/ratelimit"
	"github.com/infogenhq/infogen-engine/internal/service"
	"github.com/infogenhq/infogen-engine/internal/store"
	"github.com/infogenhq/infogen-engine/internal/transport"
	"go.uber.org/zap"
)

// instantPipeline completes both phases immediately; topics listed in
// failTopics fail analysis.
type instantPipeline struct {
	mu         sync.Mutex
	failTopics map[string]bool
}

func (p *instantPipeline) Analyze(_ context.Context, input pipeline.AnalyzeInput) (*domain.AnalysisResult, error) {
	p.mu.Lock()
	shouldFail := p.failTopics[input.Topic]
	p.mu.Unlock()

	if shouldFail {
		return nil, &pipeline.PipelineError{StatusCode: 502, Message: "analysis backend unavailable"}
	}
	return &domain.AnalysisResult{Title: input.Topic, Layout: "vertical-sections"}, nil
}

func (p *instantPipeline) Generate(context.Context, pipeline.GenerateInput) (*domain.ImageHandle, error) {
	return &domain.ImageHandle{URL: "https://cdn.infogen.local/renders/it.png", Width: 1024, Height: 1024, Format: "png"}, nil
}

func newGenerationTestApp(t *testing.T, pipe pipeline.Pipeline, rateLimit ratelimit.Config) (*fiber.App, *client.Client) {
	t.Helper()

	jobs, err := service.NewJobService(store.NewJobStore(), pipe, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewJobService() error = %v", err)
	}
	batches, err := service.NewBatchService(store.NewBatchStore(), pipe, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBatchService() error = %v", err)
	}

	opts := client.DefaultOptions("test-key")
	opts.PollInterval = client.MinPollInterval
	opts.RateLimit = rateLimit
	facade, err := client.New(opts, jobs, batches, zap.NewNop())
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := RegisterJobRoutes(app, facade); err != nil {
		t.Fatalf("RegisterJobRoutes() error = %v", err)
	}
	if err := RegisterBatchRoutes(app, facade); err != nil {
		t.Fatalf("RegisterBatchRoutes() error = %v", err)
	}
	if err := RegisterRateLimitRoutes(app, facade); err != nil {
		t.Fatalf("RegisterRateLimitRoutes() error = %v", err)
	}

	return app, facade
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func decodeJSON(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("json unmarshal error = %v, body=%s", err, string(body))
	}
	return decoded
}

func waitForJobStateHTTP(t *testing.T, app *fiber.App, id string, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := performRequest(t, app, http.MethodGet, "/v1/jobs/"+id, "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
		}
		decoded := decodeJSON(t, body)
		if decoded["state"] == want {
			return decoded
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s never reached %s over HTTP", id, want)
	return nil
}

func TestGenerationIntegration_JobLifecycle(t *testing.T) {
	t.Parallel()

	app, _ := newGenerationTestApp(t, &instantPipeline{}, ratelimit.Config{})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/jobs",
		`{"topic":"electric vehicles","size":"large","aspectRatio":"16:9"}`)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}
	created := decodeJSON(t, body)
	if created["state"] != domain.JobStatePending.String() {
		t.Fatalf("state = %v, want PENDING", created["state"])
	}
	if created["size"] != "LARGE" || created["aspectRatio"] != "16:9" {
		t.Fatalf("request echo wrong: %v", created)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("expected a job id")
	}

	completed := waitForJobStateHTTP(t, app, id, domain.JobStateCompleted.String())
	if completed["result"] == nil {
		t.Fatal("expected a result on the completed job")
	}

	resp, body = performRequest(t, app, http.MethodGet, "/v1/jobs/"+id+"/result", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	result := decodeJSON(t, body)
	image, _ := result["image"].(map[string]any)
	if image == nil || image["url"] == "" {
		t.Fatalf("expected an image url, got %v", result)
	}

	// Cancelling a terminal job conflicts.
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/jobs/"+id+"/cancel", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 cancelling a completed job", resp.StatusCode)
	}
}

func TestGenerationIntegration_JobValidationAndNotFound(t *testing.T) {
	t.Parallel()

	app, _ := newGenerationTestApp(t, &instantPipeline{}, ratelimit.Config{})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/jobs", `{"topic":""}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an empty topic", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/jobs", `{"topic":"ok","size":"gigantic"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a bad size", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/jobs/does-not-exist", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for an unknown job", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/jobs?state=SPINNING", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a bad state filter", resp.StatusCode)
	}
}

func TestGenerationIntegration_ListJobs(t *testing.T) {
	t.Parallel()

	app, _ := newGenerationTestApp(t, &instantPipeline{}, ratelimit.Config{})

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"topic":"list topic %d"}`, i)
		resp, respBody := performRequest(t, app, http.MethodPost, "/v1/jobs", body)
		if resp.StatusCode != fiber.StatusAccepted {
			t.Fatalf("status = %d, body=%s", resp.StatusCode, string(respBody))
		}
	}

	resp, body := performRequest(t, app, http.MethodGet, "/v1/jobs?page=1&pageSize=2", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
	}
	decoded := decodeJSON(t, body)
	meta, _ := decoded["meta"].(map[string]any)
	if meta["total"] != float64(3) || meta["totalPages"] != float64(2) {
		t.Fatalf("unexpected meta: %v", meta)
	}
	data, _ := decoded["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 jobs on the first page, got %d", len(data))
	}
}

func TestGenerationIntegration_BatchLifecycle(t *testing.T) {
	t.Parallel()

	pipe := &instantPipeline{failTopics: map[string]bool{"bad apple": true}}
	app, _ := newGenerationTestApp(t, pipe, ratelimit.Config{})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/batches",
		`{"name":"mixed","items":[{"topic":"good one"},{"topic":"bad apple"},{"topic":"good two"}]}`)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}
	created := decodeJSON(t, body)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("expected a batch id")
	}
	progress, _ := created["progress"].(map[string]any)
	if progress["total"] != float64(3) || progress["pending"] != float64(3) {
		t.Fatalf("unexpected initial progress: %v", progress)
	}

	deadline := time.Now().Add(2 * time.Second)
	var final map[string]any
	for time.Now().Before(deadline) {
		resp, body = performRequest(t, app, http.MethodGet, "/v1/batches/"+id, "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
		}
		final = decodeJSON(t, body)
		if final["state"] == domain.BatchStateCompleted.String() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if final["state"] != domain.BatchStateCompleted.String() {
		t.Fatalf("batch never completed: %v", final["state"])
	}
	progress, _ = final["progress"].(map[string]any)
	if progress["completed"] != float64(2) || progress["failed"] != float64(1) {
		t.Fatalf("unexpected final progress: %v", progress)
	}

	resp, body = performRequest(t, app, http.MethodGet, "/v1/batches/"+id+"/results", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
	}
	results := decodeJSON(t, body)
	items, _ := results["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	failedItem, _ := items[1].(map[string]any)
	if failedItem["state"] != domain.ItemStateFailed.String() {
		t.Fatalf("expected item 2 FAILED, got %v", failedItem["state"])
	}
	itemErr, _ := failedItem["error"].(map[string]any)
	if itemErr["code"] != domain.ErrCodeAnalysisFailed {
		t.Fatalf("expected ANALYSIS_FAILED, got %v", itemErr)
	}

	// Retry the failed item once the upstream recovers.
	pipe.mu.Lock()
	delete(pipe.failTopics, "bad apple")
	pipe.mu.Unlock()

	resp, body = performRequest(t, app, http.MethodPost, "/v1/batches/"+id+"/retry", `{}`)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body = performRequest(t, app, http.MethodGet, "/v1/batches/"+id, "")
		final = decodeJSON(t, body)
		progress, _ = final["progress"].(map[string]any)
		if final["state"] == domain.BatchStateCompleted.String() && progress["completed"] == float64(3) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("retried batch never completed fully: %v", final)
}

func TestGenerationIntegration_BatchNotFoundAndValidation(t *testing.T) {
	t.Parallel()

	app, _ := newGenerationTestApp(t, &instantPipeline{}, ratelimit.Config{})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/batches", `{"items":[]}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an empty batch", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/batches/none", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for an unknown batch", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/batches/none/cancel", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 cancelling an unknown batch", resp.StatusCode)
	}
}

func TestGenerationIntegration_RateLimitSurface(t *testing.T) {
	t.Parallel()

	app, _ := newGenerationTestApp(t, &instantPipeline{}, ratelimit.Config{
		MaxRequests: 1,
		Window:      time.Minute,
		Cooldown:    time.Minute,
	})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/jobs", `{"topic":"first"}`)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	resp, body := performRequest(t, app, http.MethodPost, "/v1/jobs", `{"topic":"second"}`)
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429, body=%s", resp.StatusCode, string(body))
	}

	resp, body = performRequest(t, app, http.MethodGet, "/v1/ratelimit", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
	}
	status := decodeJSON(t, body)
	if status["canMakeRequest"] != false || status["remaining"] != float64(0) {
		t.Fatalf("unexpected rate limit status: %v", status)
	}
	if status["timeUntilResetMs"].(float64) <= 0 {
		t.Fatalf("expected a positive reset time, got %v", status["timeUntilResetMs"])
	}

	// Raising the budget over PATCH frees admission immediately.
	resp, body = performRequest(t, app, http.MethodPatch, "/v1/ratelimit", `{"maxRequests":10}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
	}
	status = decodeJSON(t, body)
	if status["canMakeRequest"] != true {
		t.Fatalf("expected admission after the raise, got %v", status)
	}

	resp, _ = performRequest(t, app, http.MethodPatch, "/v1/ratelimit", `{"maxRequests":0}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for maxRequests=0", resp.StatusCode)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/v1/ratelimit/reset", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
	}
	status = decodeJSON(t, body)
	if status["remaining"] != float64(10) {
		t.Fatalf("expected a full budget after reset, got %v", status)
	}
}

func TestGenerationIntegration_HealthRoutes(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	RegisterHealthRoutes(app, nil, nil)

	resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
	}

	resp, body = performRequest(t, app, http.MethodGet, "/readyz", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body=%s", resp.StatusCode, string(body))
	}
	decoded := decodeJSON(t, body)
	checks, _ := decoded["checks"].(map[string]any)
	if checks["postgres"] != "skipped" || checks["redis"] != "skipped" {
		t.Fatalf("nil dependencies must be skipped, got %v", checks)
	}
}

