package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/repository"
)

type HistoryHandler struct {
	history repository.HistoryRepository
}

func NewHistoryHandler(history repository.HistoryRepository) (*HistoryHandler, error) {
	if history == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	return &HistoryHandler{history: history}, nil
}

func RegisterHistoryRoutes(router fiber.Router, history repository.HistoryRepository) error {
	h, err := NewHistoryHandler(history)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/history", h.ListHistory)
	v1.Get("/history/:jobId", h.GetHistoryByJob)

	return nil
}

type historyRecordResponse struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	Topic       string    `json:"topic"`
	Style       string    `json:"style,omitempty"`
	Title       string    `json:"title"`
	ImageURL    string    `json:"imageUrl"`
	ImageWidth  int       `json:"imageWidth"`
	ImageHeight int       `json:"imageHeight"`
	CompletedAt time.Time `json:"completedAt"`
}

type listHistoryResponse struct {
	Data []historyRecordResponse `json:"data"`
	Meta listMeta                `json:"meta"`
}

func (h *HistoryHandler) ListHistory(c *fiber.Ctx) error {
	page := c.QueryInt("page", defaultPage)
	pageSize := c.QueryInt("pageSize", defaultPageSize)
	if page < 1 {
		return toHTTPError(fmt.Errorf("%w: page must be >= 1", domain.ErrValidation))
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	params := repository.HistoryListParams{
		Topic:    strings.TrimSpace(c.Query("topic")),
		Style:    strings.TrimSpace(c.Query("style")),
		Page:     page,
		PageSize: pageSize,
	}
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return toHTTPError(err)
	}
	params.From = from
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return toHTTPError(err)
	}
	params.To = to

	records, total, err := h.history.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]historyRecordResponse, 0, len(records))
	for i := range records {
		data = append(data, toHistoryRecordResponse(&records[i]))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return c.Status(fiber.StatusOK).JSON(listHistoryResponse{
		Data: data,
		Meta: listMeta{
			Page:        page,
			PageSize:    pageSize,
			Total:       int(total),
			TotalPages:  totalPages,
			HasNext:     page < totalPages,
			HasPrevious: page > 1,
		},
	})
}

func (h *HistoryHandler) GetHistoryByJob(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("jobId"))
	record, err := h.history.GetByJobID(c.Context(), jobID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toHistoryRecordResponse(record))
}

func parseTimeQuery(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC3339 timestamp", domain.ErrValidation, name)
	}
	return &ts, nil
}

func toHistoryRecordResponse(r *domain.GenerationRecord) historyRecordResponse {
	return historyRecordResponse{
		ID:          r.ID,
		JobID:       r.JobID,
		Topic:       r.Topic,
		Style:       r.Style,
		Title:       r.Title,
		ImageURL:    r.ImageURL,
		ImageWidth:  r.ImageWidth,
		ImageHeight: r.ImageHeight,
		CompletedAt: r.CompletedAt,
	}
}
