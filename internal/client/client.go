// Package client is the in-process facade over the generation services:
// one object holding the validated options, the client-side rate limiter,
// and the job/batch orchestrators behind it.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/pipeline"
	"github.com/infogenhq/infogen-engine/internal/ratelimit"
	"github.com/infogenhq/infogen-engine/internal/service"
	"github.com/infogenhq/infogen-engine/internal/store"
	"go.uber.org/zap"
)

// Client wraps the orchestrators behind a validated configuration and a
// client-side sliding-window limiter. Every generation-submitting call
// passes the limiter first; read-only calls do not consume budget.
type Client struct {
	opts    Options
	jobs    *service.JobService
	batches *service.BatchService
	limiter *ratelimit.Window
	logger  *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New validates the options and builds the client. Validation failures
// surface here, never on first use.
func New(opts Options, jobs *service.JobService, batches *service.BatchService, logger *zap.Logger) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if jobs == nil {
		return nil, fmt.Errorf("job service is required")
	}
	if batches == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		opts:    opts,
		jobs:    jobs,
		batches: batches,
		limiter: ratelimit.NewWindow(opts.RateLimit),
		logger:  logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return ctx.Err()
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}

	// Upstream 429s surface asynchronously through the orchestrators; arm
	// the cooldown from there rather than from return values.
	jobs.SetRateLimitSignal(c.limiter.ActivateCooldown)
	batches.SetRateLimitSignal(c.limiter.ActivateCooldown)

	return c, nil
}

// Options returns the validated configuration the client was built with.
func (c *Client) Options() Options { return c.opts }

// admit consumes one request from the rate budget, or rejects with the
// time until the budget frees up.
func (c *Client) admit() error {
	if !c.limiter.CanMakeRequest() {
		return fmt.Errorf("%w: retry after %s", domain.ErrRateLimited, c.limiter.TimeUntilReset().Round(time.Millisecond))
	}
	c.limiter.RecordRequest()
	return nil
}

// observe arms the cooldown when an error indicates the upstream rejected
// us for rate limiting. The error passes through unchanged.
func (c *Client) observe(err error) error {
	if err == nil {
		return nil
	}
	if pipeline.IsRateLimited(err) || errors.Is(err, domain.ErrRateLimited) {
		c.limiter.ActivateCooldown()
		c.logger.Warn("upstream rate limit hit, cooldown armed",
			zap.Duration("timeUntilReset", c.limiter.TimeUntilReset()),
		)
	}
	return err
}

// CreateJob submits one generation request. Returns ErrRateLimited without
// touching the services when the local budget is exhausted.
func (c *Client) CreateJob(ctx context.Context, request domain.GenerationRequest) (*domain.Job, error) {
	if err := c.admit(); err != nil {
		return nil, err
	}
	job, err := c.jobs.Create(ctx, request)
	return job, c.observe(err)
}

func (c *Client) GetJobStatus(ctx context.Context, id string) (*domain.Job, error) {
	return c.jobs.GetStatus(ctx, id)
}

func (c *Client) GetJobResult(ctx context.Context, id string) (*domain.GenerationResult, error) {
	return c.jobs.GetResult(ctx, id)
}

func (c *Client) CancelJob(ctx context.Context, id string) (*domain.Job, error) {
	return c.jobs.Cancel(ctx, id)
}

func (c *Client) ListJobs(ctx context.Context, filter store.ListFilter, page, pageSize int) (*service.JobPage, error) {
	return c.jobs.List(ctx, filter, page, pageSize)
}

// CreateBatch submits a batch as a single request against the rate budget;
// the per-item pacing happens server-side via DelayBetweenItems.
func (c *Client) CreateBatch(ctx context.Context, name string, requests []domain.GenerationRequest, config domain.BatchConfig) (*domain.Batch, error) {
	if err := c.admit(); err != nil {
		return nil, err
	}
	if config.WebhookURL == "" {
		config.WebhookURL = c.opts.WebhookURL
	}
	batch, err := c.batches.Create(ctx, name, requests, config)
	return batch, c.observe(err)
}

func (c *Client) GetBatchStatus(ctx context.Context, id string) (*domain.Batch, error) {
	return c.batches.GetStatus(ctx, id)
}

func (c *Client) GetBatchResults(ctx context.Context, id string) ([]domain.BatchItem, domain.BatchProgress, error) {
	return c.batches.GetResults(ctx, id)
}

func (c *Client) CancelBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return c.batches.Cancel(ctx, id)
}

func (c *Client) RetryBatchItems(ctx context.Context, id string, itemIDs []string) (*domain.Batch, error) {
	if err := c.admit(); err != nil {
		return nil, err
	}
	batch, err := c.batches.Retry(ctx, id, itemIDs)
	return batch, c.observe(err)
}

func (c *Client) PauseBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return c.batches.Pause(ctx, id)
}

func (c *Client) ResumeBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return c.batches.Resume(ctx, id)
}

// WaitForJob polls until the job finishes, using the configured poll
// interval. Exhaustion reports ErrPollTimeout, distinct from job failure.
func (c *Client) WaitForJob(ctx context.Context, id string) (*domain.GenerationResult, error) {
	return service.PollJob(ctx, c.jobs, id, c.opts.PollInterval, 0)
}

func (c *Client) WaitForBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return service.PollBatch(ctx, c.batches, id, c.opts.PollInterval, 0)
}

// GenerateAndWait submits, waits, and re-submits on failure up to the
// configured retry budget. Validation and rate-limit rejections are not
// retried; only a job that actually ran and failed transiently is. A
// cancelled job or a permanent upstream rejection surfaces immediately.
func (c *Client) GenerateAndWait(ctx context.Context, request domain.GenerationRequest) (*domain.GenerationResult, error) {
	delay := c.opts.Retry.RetryDelay

	var lastErr error
	for attempt := 0; attempt <= c.opts.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			if c.opts.Retry.ExponentialBackoff {
				delay *= 2
			}
		}

		job, err := c.CreateJob(ctx, request)
		if err != nil {
			// Not retryable client-side: the request never ran.
			return nil, err
		}

		result, err := c.WaitForJob(ctx, job.ID)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrPollTimeout) || ctx.Err() != nil {
			return nil, err
		}

		var jobErr *domain.JobError
		if !errors.As(err, &jobErr) {
			return nil, err
		}
		if !jobErr.Transient {
			return nil, err
		}
		c.logger.Warn("generation attempt failed",
			zap.Int("attempt", attempt+1),
			zap.String("code", jobErr.Code),
		)
	}

	return nil, fmt.Errorf("generation failed after %d attempts: %w", c.opts.Retry.MaxRetries+1, lastErr)
}

// Rate limit introspection.

func (c *Client) CanMakeRequest() bool { return c.limiter.CanMakeRequest() }

func (c *Client) RemainingRequests() int { return c.limiter.RemainingRequests() }

func (c *Client) TimeUntilReset() time.Duration { return c.limiter.TimeUntilReset() }

func (c *Client) InCooldown() bool { return c.limiter.InCooldown() }

func (c *Client) ResetRateLimit() { c.limiter.Reset() }

// UpdateRateLimit applies a partial limiter config change; in-window
// history and an armed cooldown survive the update.
func (c *Client) UpdateRateLimit(update ratelimit.ConfigUpdate) {
	c.limiter.UpdateConfig(update)
}
