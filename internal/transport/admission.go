package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/infogenhq/infogen-engine/internal/ratelimit"
	"go.uber.org/zap"
)

// Admission rejects requests over the per-caller budget before they reach
// the handlers. Requests are keyed by remote IP. A limiter failure lets the
// request through so a Redis outage does not take the API down with it.
func Admission(limiter ratelimit.RateLimiter, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		allowed, err := limiter.Allow(c.UserContext(), c.IP())
		if err != nil {
			logger.Warn("admission check failed, allowing request", zap.Error(err))
			return c.Next()
		}
		if !allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}

		return c.Next()
	}
}
