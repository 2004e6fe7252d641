package ratelimit

import "context"

// RateLimiter controls request admission for a shared resource.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
