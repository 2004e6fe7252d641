package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/service"
	"github.com/infogenhq/infogen-engine/internal/store"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

type JobAPI interface {
	CreateJob(ctx context.Context, request domain.GenerationRequest) (*domain.Job, error)
	GetJobStatus(ctx context.Context, id string) (*domain.Job, error)
	GetJobResult(ctx context.Context, id string) (*domain.GenerationResult, error)
	CancelJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter store.ListFilter, page, pageSize int) (*service.JobPage, error)
}

type JobHandler struct {
	api JobAPI
}

func NewJobHandler(api JobAPI) (*JobHandler, error) {
	if api == nil {
		return nil, fmt.Errorf("job api is required")
	}
	return &JobHandler{api: api}, nil
}

func RegisterJobRoutes(router fiber.Router, api JobAPI) error {
	h, err := NewJobHandler(api)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/jobs", h.CreateJob)
	v1.Get("/jobs", h.ListJobs)
	v1.Get("/jobs/:id", h.GetJob)
	v1.Get("/jobs/:id/result", h.GetJobResult)
	v1.Post("/jobs/:id/cancel", h.CancelJob)

	return nil
}

type createJobRequest struct {
	Topic       string            `json:"topic"`
	Size        string            `json:"size,omitempty"`
	AspectRatio string            `json:"aspectRatio,omitempty"`
	Style       string            `json:"style,omitempty"`
	Palette     []string          `json:"palette,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	FileContent []byte            `json:"fileContent,omitempty"`
}

type jobErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type analysisSectionResponse struct {
	Heading string   `json:"heading"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon,omitempty"`
	Points  []string `json:"points,omitempty"`
}

type analysisResponse struct {
	Title    string                    `json:"title"`
	Subtitle string                    `json:"subtitle,omitempty"`
	Sections []analysisSectionResponse `json:"sections"`
	Layout   string                    `json:"layout"`
	Palette  []string                  `json:"palette,omitempty"`
}

type imageResponse struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type resultResponse struct {
	Analysis analysisResponse `json:"analysis"`
	Image    imageResponse    `json:"image"`
}

type jobResponse struct {
	ID                  string            `json:"id"`
	State               string            `json:"state"`
	Topic               string            `json:"topic"`
	Size                string            `json:"size"`
	AspectRatio         string            `json:"aspectRatio"`
	Style               string            `json:"style,omitempty"`
	Result              *resultResponse   `json:"result,omitempty"`
	Error               *jobErrorResponse `json:"error,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	StartedAt           *time.Time        `json:"startedAt,omitempty"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty"`
	EstimatedCompletion time.Time         `json:"estimatedCompletion"`
}

type listJobsResponse struct {
	Data []jobResponse `json:"data"`
	Meta listMeta      `json:"meta"`
}

type listMeta struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	var req createJobRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	request, err := requestToGenerationRequest(req)
	if err != nil {
		return toHTTPError(err)
	}

	job, err := h.api.CreateJob(c.Context(), request)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toJobResponse(job))
}

func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	job, err := h.api.GetJobStatus(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func (h *JobHandler) GetJobResult(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	result, err := h.api.GetJobResult(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toResultResponse(result))
}

func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	job, err := h.api.CancelJob(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	page := c.QueryInt("page", defaultPage)
	pageSize := c.QueryInt("pageSize", defaultPageSize)
	if page < 1 {
		return toHTTPError(fmt.Errorf("%w: page must be >= 1", domain.ErrValidation))
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	var filter store.ListFilter
	if rawState := strings.TrimSpace(c.Query("state")); rawState != "" {
		state, err := domain.ParseJobStateFromString(rawState)
		if err != nil {
			return toHTTPError(err)
		}
		filter.State = &state
	}

	result, err := h.api.ListJobs(c.Context(), filter, page, pageSize)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]jobResponse, 0, len(result.Jobs))
	for i := range result.Jobs {
		data = append(data, toJobResponse(&result.Jobs[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listJobsResponse{
		Data: data,
		Meta: listMeta{
			Page:        result.Page,
			PageSize:    result.PageSize,
			Total:       result.TotalCount,
			TotalPages:  result.TotalPages,
			HasNext:     result.HasNext,
			HasPrevious: result.HasPrevious,
		},
	})
}

func requestToGenerationRequest(req createJobRequest) (domain.GenerationRequest, error) {
	request := domain.GenerationRequest{
		Topic:       strings.TrimSpace(req.Topic),
		Style:       strings.TrimSpace(req.Style),
		Palette:     req.Palette,
		Filters:     req.Filters,
		FileContent: req.FileContent,
	}

	if raw := strings.TrimSpace(req.Size); raw != "" {
		size, err := domain.ParseOutputSizeFromString(raw)
		if err != nil {
			return domain.GenerationRequest{}, err
		}
		request.Size = size
	}
	if raw := strings.TrimSpace(req.AspectRatio); raw != "" {
		ratio, err := domain.ParseAspectRatioFromString(raw)
		if err != nil {
			return domain.GenerationRequest{}, err
		}
		request.AspectRatio = ratio
	}

	return request, nil
}

func toJobResponse(job *domain.Job) jobResponse {
	if job == nil {
		return jobResponse{}
	}

	resp := jobResponse{
		ID:                  job.ID,
		State:               job.State.String(),
		Topic:               job.Request.Topic,
		Size:                job.Request.Size.String(),
		AspectRatio:         job.Request.AspectRatio.String(),
		Style:               job.Request.Style,
		CreatedAt:           job.CreatedAt,
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
		EstimatedCompletion: job.EstimatedCompletion,
	}
	if job.Result != nil {
		result := toResultResponse(job.Result)
		resp.Result = &result
	}
	if job.Error != nil {
		resp.Error = &jobErrorResponse{Code: job.Error.Code, Message: job.Error.Message}
	}
	return resp
}

func toResultResponse(result *domain.GenerationResult) resultResponse {
	if result == nil {
		return resultResponse{}
	}

	sections := make([]analysisSectionResponse, 0, len(result.Analysis.Sections))
	for _, section := range result.Analysis.Sections {
		sections = append(sections, analysisSectionResponse{
			Heading: section.Heading,
			Body:    section.Body,
			Icon:    section.Icon,
			Points:  section.Points,
		})
	}

	return resultResponse{
		Analysis: analysisResponse{
			Title:    result.Analysis.Title,
			Subtitle: result.Analysis.Subtitle,
			Sections: sections,
			Layout:   result.Analysis.Layout,
			Palette:  result.Analysis.Palette,
		},
		Image: imageResponse{
			URL:    result.Image.URL,
			Width:  result.Image.Width,
			Height: result.Image.Height,
			Format: result.Image.Format,
		},
	}
}
