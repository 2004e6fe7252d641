package handler

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/ratelimit"
)

type RateLimitAPI interface {
	CanMakeRequest() bool
	RemainingRequests() int
	TimeUntilReset() time.Duration
	InCooldown() bool
	ResetRateLimit()
	UpdateRateLimit(update ratelimit.ConfigUpdate)
}

type RateLimitHandler struct {
	api RateLimitAPI
}

func NewRateLimitHandler(api RateLimitAPI) (*RateLimitHandler, error) {
	if api == nil {
		return nil, fmt.Errorf("rate limit api is required")
	}
	return &RateLimitHandler{api: api}, nil
}

func RegisterRateLimitRoutes(router fiber.Router, api RateLimitAPI) error {
	h, err := NewRateLimitHandler(api)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/ratelimit", h.GetStatus)
	v1.Patch("/ratelimit", h.UpdateConfig)
	v1.Post("/ratelimit/reset", h.Reset)

	return nil
}

type rateLimitStatusResponse struct {
	CanMakeRequest   bool  `json:"canMakeRequest"`
	Remaining        int   `json:"remaining"`
	InCooldown       bool  `json:"inCooldown"`
	TimeUntilResetMs int64 `json:"timeUntilResetMs"`
}

type updateRateLimitRequest struct {
	MaxRequests *int   `json:"maxRequests,omitempty"`
	WindowMs    *int64 `json:"windowMs,omitempty"`
	CooldownMs  *int64 `json:"cooldownMs,omitempty"`
}

func (h *RateLimitHandler) GetStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.statusResponse())
}

func (h *RateLimitHandler) UpdateConfig(c *fiber.Ctx) error {
	var req updateRateLimitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var update ratelimit.ConfigUpdate
	if req.MaxRequests != nil {
		if *req.MaxRequests <= 0 {
			return toHTTPError(fmt.Errorf("%w: maxRequests must be > 0", domain.ErrValidation))
		}
		update.MaxRequests = req.MaxRequests
	}
	if req.WindowMs != nil {
		if *req.WindowMs <= 0 {
			return toHTTPError(fmt.Errorf("%w: windowMs must be > 0", domain.ErrValidation))
		}
		window := time.Duration(*req.WindowMs) * time.Millisecond
		update.Window = &window
	}
	if req.CooldownMs != nil {
		if *req.CooldownMs < 0 {
			return toHTTPError(fmt.Errorf("%w: cooldownMs must be >= 0", domain.ErrValidation))
		}
		cooldown := time.Duration(*req.CooldownMs) * time.Millisecond
		update.Cooldown = &cooldown
	}

	h.api.UpdateRateLimit(update)
	return c.Status(fiber.StatusOK).JSON(h.statusResponse())
}

func (h *RateLimitHandler) Reset(c *fiber.Ctx) error {
	h.api.ResetRateLimit()
	return c.Status(fiber.StatusOK).JSON(h.statusResponse())
}

func (h *RateLimitHandler) statusResponse() rateLimitStatusResponse {
	return rateLimitStatusResponse{
		CanMakeRequest:   h.api.CanMakeRequest(),
		Remaining:        h.api.RemainingRequests(),
		InCooldown:       h.api.InCooldown(),
		TimeUntilResetMs: h.api.TimeUntilReset().Milliseconds(),
	}
}
