package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsJobCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncJobCreated()
	metrics.IncJobCreated()
	metrics.IncJobCompleted()
	metrics.IncJobFailed("Analyzing")
	metrics.ObservePhaseDuration("analyzing", 120*time.Millisecond)
	metrics.IncBatchCreated()
	metrics.IncBatchFinished("COMPLETED")
	metrics.IncRateLimitRejected("client")

	if got := testutil.ToFloat64(metrics.jobsCreatedTotal); got != 2 {
		t.Fatalf("jobs_created_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.jobsCompletedTotal); got != 1 {
		t.Fatalf("jobs_completed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.jobsFailedTotal.WithLabelValues("analyzing")); got != 1 {
		t.Fatalf("jobs_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.jobsInFlight); got != 0 {
		t.Fatalf("jobs_in_flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.batchesFinishedTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("batches_finished_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.rateLimitRejectedTotal.WithLabelValues("client")); got != 1 {
		t.Fatalf("rate_limit_rejected_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
