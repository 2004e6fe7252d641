package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/infogenhq/infogen-engine/internal/domain"
)

type BatchAPI interface {
	CreateBatch(ctx context.Context, name string, requests []domain.GenerationRequest, config domain.BatchConfig) (*domain.Batch, error)
	GetBatchStatus(ctx context.Context, id string) (*domain.Batch, error)
	GetBatchResults(ctx context.Context, id string) ([]domain.BatchItem, domain.BatchProgress, error)
	CancelBatch(ctx context.Context, id string) (*domain.Batch, error)
	RetryBatchItems(ctx context.Context, id string, itemIDs []string) (*domain.Batch, error)
	PauseBatch(ctx context.Context, id string) (*domain.Batch, error)
	ResumeBatch(ctx context.Context, id string) (*domain.Batch, error)
}

type BatchHandler struct {
	api BatchAPI
}

func NewBatchHandler(api BatchAPI) (*BatchHandler, error) {
	if api == nil {
		return nil, fmt.Errorf("batch api is required")
	}
	return &BatchHandler{api: api}, nil
}

func RegisterBatchRoutes(router fiber.Router, api BatchAPI) error {
	h, err := NewBatchHandler(api)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Get("/batches/:id/results", h.GetBatchResults)
	v1.Post("/batches/:id/cancel", h.CancelBatch)
	v1.Post("/batches/:id/retry", h.RetryBatch)
	v1.Post("/batches/:id/pause", h.PauseBatch)
	v1.Post("/batches/:id/resume", h.ResumeBatch)

	return nil
}

type createBatchRequest struct {
	Name                string             `json:"name,omitempty"`
	Items               []createJobRequest `json:"items"`
	DelayBetweenItemsMs int64              `json:"delayBetweenItemsMs,omitempty"`
	StopOnError         bool               `json:"stopOnError,omitempty"`
	WebhookURL          string             `json:"webhookUrl,omitempty"`
}

type retryBatchRequest struct {
	ItemIDs []string `json:"itemIds,omitempty"`
}

type batchItemResponse struct {
	ID          string            `json:"id"`
	Topic       string            `json:"topic"`
	State       string            `json:"state"`
	Result      *resultResponse   `json:"result,omitempty"`
	Error       *jobErrorResponse `json:"error,omitempty"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

type batchProgressResponse struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}

type batchResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name,omitempty"`
	State       string                `json:"state"`
	Progress    batchProgressResponse `json:"progress"`
	Items       []batchItemResponse   `json:"items"`
	CreatedAt   time.Time             `json:"createdAt"`
	CompletedAt *time.Time            `json:"completedAt,omitempty"`
}

type batchResultsResponse struct {
	Progress batchProgressResponse `json:"progress"`
	Items    []batchItemResponse   `json:"items"`
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.Items) == 0 {
		return toHTTPError(fmt.Errorf("%w: items is required", domain.ErrValidation))
	}

	requests := make([]domain.GenerationRequest, 0, len(req.Items))
	for _, item := range req.Items {
		request, err := requestToGenerationRequest(item)
		if err != nil {
			return toHTTPError(err)
		}
		requests = append(requests, request)
	}

	config := domain.BatchConfig{
		DelayBetweenItems: time.Duration(req.DelayBetweenItemsMs) * time.Millisecond,
		StopOnError:       req.StopOnError,
		WebhookURL:        strings.TrimSpace(req.WebhookURL),
	}

	batch, err := h.api.CreateBatch(c.Context(), req.Name, requests, config)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	batch, err := h.api.GetBatchStatus(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetBatchResults(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	items, progress, err := h.api.GetBatchResults(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(batchResultsResponse{
		Progress: toProgressResponse(progress),
		Items:    toBatchItemResponses(items),
	})
}

func (h *BatchHandler) CancelBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	batch, err := h.api.CancelBatch(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) RetryBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	var req retryBatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	batch, err := h.api.RetryBatchItems(c.Context(), id, req.ItemIDs)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) PauseBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	batch, err := h.api.PauseBatch(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) ResumeBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	batch, err := h.api.ResumeBatch(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func toBatchResponse(batch *domain.Batch) batchResponse {
	if batch == nil {
		return batchResponse{}
	}

	return batchResponse{
		ID:          batch.ID,
		Name:        batch.Name,
		State:       batch.State.String(),
		Progress:    toProgressResponse(batch.Progress),
		Items:       toBatchItemResponses(batch.Items),
		CreatedAt:   batch.CreatedAt,
		CompletedAt: batch.CompletedAt,
	}
}

func toProgressResponse(progress domain.BatchProgress) batchProgressResponse {
	return batchProgressResponse{
		Total:      progress.Total,
		Completed:  progress.Completed,
		Failed:     progress.Failed,
		Pending:    progress.Pending,
		Processing: progress.Processing,
	}
}

func toBatchItemResponses(items []domain.BatchItem) []batchItemResponse {
	responses := make([]batchItemResponse, 0, len(items))
	for i := range items {
		item := &items[i]
		resp := batchItemResponse{
			ID:          item.ID,
			Topic:       item.Request.Topic,
			State:       item.State.String(),
			StartedAt:   item.StartedAt,
			CompletedAt: item.CompletedAt,
		}
		if item.Result != nil {
			result := toResultResponse(item.Result)
			resp.Result = &result
		}
		if item.Error != nil {
			resp.Error = &jobErrorResponse{Code: item.Error.Code, Message: item.Error.Message}
		}
		responses = append(responses, resp)
	}
	return responses
}
