package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the HTTP surface and the
// generation orchestrators.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	jobsCreatedTotal        prometheus.Counter
	jobsCompletedTotal      prometheus.Counter
	jobsFailedTotal         *prometheus.CounterVec
	jobsCancelledTotal      prometheus.Counter
	batchesCreatedTotal     prometheus.Counter
	batchesFinishedTotal    *prometheus.CounterVec
	phaseDuration           *prometheus.HistogramVec
	rateLimitRejectedTotal  *prometheus.CounterVec
	jobsInFlight            prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "infogen",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "infogen",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		jobsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "infogen",
			Name:      "jobs_created_total",
			Help:      "Total number of generation jobs created.",
		}),
		jobsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "infogen",
			Name:      "jobs_completed_total",
			Help:      "Total number of generation jobs that completed successfully.",
		}),
		jobsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "infogen",
				Name:      "jobs_failed_total",
				Help:      "Total number of generation jobs that failed, grouped by phase.",
			},
			[]string{"phase"},
		),
		jobsCancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "infogen",
			Name:      "jobs_cancelled_total",
			Help:      "Total number of generation jobs cancelled by callers.",
		}),
		batchesCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "infogen",
			Name:      "batches_created_total",
			Help:      "Total number of batches created.",
		}),
		batchesFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "infogen",
				Name:      "batches_finished_total",
				Help:      "Total number of batches reaching a terminal state, grouped by outcome.",
			},
			[]string{"outcome"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "infogen",
				Name:      "phase_duration_seconds",
				Help:      "Pipeline phase duration in seconds grouped by phase.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"phase"},
		),
		rateLimitRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "infogen",
				Name:      "rate_limit_rejected_total",
				Help:      "Total number of requests rejected by admission control, grouped by source.",
			},
			[]string{"source"},
		),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "infogen",
			Name:      "jobs_in_flight",
			Help:      "Current number of jobs between creation and a terminal state.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.jobsCreatedTotal,
		m.jobsCompletedTotal,
		m.jobsFailedTotal,
		m.jobsCancelledTotal,
		m.batchesCreatedTotal,
		m.batchesFinishedTotal,
		m.phaseDuration,
		m.rateLimitRejectedTotal,
		m.jobsInFlight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncJobCreated() {
	if m == nil {
		return
	}
	m.jobsCreatedTotal.Inc()
	m.jobsInFlight.Inc()
}

func (m *Metrics) IncJobCompleted() {
	if m == nil {
		return
	}
	m.jobsCompletedTotal.Inc()
	m.jobsInFlight.Dec()
}

func (m *Metrics) IncJobFailed(phase string) {
	if m == nil {
		return
	}
	m.jobsFailedTotal.WithLabelValues(normalizeLabel(phase)).Inc()
	m.jobsInFlight.Dec()
}

func (m *Metrics) IncJobCancelled() {
	if m == nil {
		return
	}
	m.jobsCancelledTotal.Inc()
	m.jobsInFlight.Dec()
}

func (m *Metrics) IncBatchCreated() {
	if m == nil {
		return
	}
	m.batchesCreatedTotal.Inc()
}

func (m *Metrics) IncBatchFinished(outcome string) {
	if m == nil {
		return
	}
	m.batchesFinishedTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObservePhaseDuration(phase string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.phaseDuration.WithLabelValues(normalizeLabel(phase)).Observe(seconds)
}

func (m *Metrics) IncRateLimitRejected(source string) {
	if m == nil {
		return
	}
	m.rateLimitRejectedTotal.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
