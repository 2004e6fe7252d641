package handler

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/repository"
	"github.com/infogenhq/infogen-engine/internal/transport"
	"go.uber.org/zap"
)

// fakeHistory is an in-memory HistoryRepository double that records the
// last list params it was queried with.
type fakeHistory struct {
	records    []domain.GenerationRecord
	lastParams repository.HistoryListParams
}

func (h *fakeHistory) SaveGeneration(_ context.Context, record *domain.GenerationRecord) error {
	h.records = append(h.records, *record)
	return nil
}

func (h *fakeHistory) GetByJobID(_ context.Context, jobID string) (*domain.GenerationRecord, error) {
	for i := range h.records {
		if h.records[i].JobID == jobID {
			record := h.records[i]
			return &record, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (h *fakeHistory) List(_ context.Context, params repository.HistoryListParams) ([]domain.GenerationRecord, int64, error) {
	h.lastParams = params
	return append([]domain.GenerationRecord(nil), h.records...), int64(len(h.records)), nil
}

func (h *fakeHistory) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newHistoryTestApp(t *testing.T, history repository.HistoryRepository) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterHistoryRoutes(app, history); err != nil {
		t.Fatalf("RegisterHistoryRoutes() error = %v", err)
	}
	return app
}

func TestHistoryRoutes_List(t *testing.T) {
	t.Parallel()

	completed := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	history := &fakeHistory{records: []domain.GenerationRecord{
		{ID: "r-1", JobID: "job-1", Topic: "solar power", Title: "Solar Power: Key Insights",
			ImageURL: "https://img/1.png", ImageWidth: 1024, ImageHeight: 1024, CompletedAt: completed},
	}}
	app := newHistoryTestApp(t, history)

	resp, body := performRequest(t, app, fiber.MethodGet,
		"/v1/history?topic=solar&style=flat&from=2026-02-01T00:00:00Z&page=2&pageSize=10", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	decoded := decodeJSON(t, body)
	data, ok := decoded["data"].([]any)
	if !ok || len(data) != 1 {
		t.Fatalf("data = %v, want one record", decoded["data"])
	}
	record := data[0].(map[string]any)
	if record["jobId"] != "job-1" || record["imageUrl"] != "https://img/1.png" {
		t.Fatalf("record = %v", record)
	}

	if history.lastParams.Topic != "solar" || history.lastParams.Style != "flat" {
		t.Fatalf("filters not forwarded: %+v", history.lastParams)
	}
	if history.lastParams.From == nil || !history.lastParams.From.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from filter not forwarded: %+v", history.lastParams.From)
	}
	if history.lastParams.Page != 2 || history.lastParams.PageSize != 10 {
		t.Fatalf("pagination not forwarded: %+v", history.lastParams)
	}
}

func TestHistoryRoutes_ListValidation(t *testing.T) {
	t.Parallel()

	app := newHistoryTestApp(t, &fakeHistory{})

	cases := []struct {
		name string
		path string
	}{
		{"bad page", "/v1/history?page=0"},
		{"oversized page size", "/v1/history?pageSize=500"},
		{"bad from timestamp", "/v1/history?from=yesterday"},
		{"bad to timestamp", "/v1/history?to=2026-13-99"},
	}

	for _, tc := range cases {
		resp, body := performRequest(t, app, fiber.MethodGet, tc.path, "")
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d, body = %s", tc.name, resp.StatusCode, body)
		}
	}
}

func TestHistoryRoutes_GetByJob(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{records: []domain.GenerationRecord{
		{ID: "r-1", JobID: "job-1", Topic: "wind power", Title: "Wind Power: Key Insights"},
	}}
	app := newHistoryTestApp(t, history)

	resp, body := performRequest(t, app, fiber.MethodGet, "/v1/history/job-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	decoded := decodeJSON(t, body)
	if decoded["topic"] != "wind power" {
		t.Fatalf("topic = %v, want wind power", decoded["topic"])
	}

	resp, _ = performRequest(t, app, fiber.MethodGet, "/v1/history/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
