package service

import (
	"context"
	"fmt"
	"time"

	"github.com/infogenhq/infogen-engine/internal/domain"
)

const (
	DefaultJobPollInterval   = 2 * time.Second
	DefaultJobPollAttempts   = 30
	DefaultBatchPollInterval = 3 * time.Second
	DefaultBatchPollAttempts = 100
)

// PollOutcome is one observation of the polled entity: its current state
// plus, on terminal failure, the recorded error.
type PollOutcome[T any] struct {
	Terminal bool
	Failed   bool
	Value    T
	Error    *domain.JobError
}

// Poller repeatedly samples an asynchronous operation until it reaches a
// terminal state or the attempt budget runs out. Exhaustion surfaces as
// ErrPollTimeout, which callers can tell apart from a failed operation.
type Poller[T any] struct {
	interval    time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewPoller[T any](interval time.Duration, maxAttempts int) *Poller[T] {
	if interval <= 0 {
		interval = DefaultJobPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultJobPollAttempts
	}
	return &Poller[T]{
		interval:    interval,
		maxAttempts: maxAttempts,
		sleep:       sleepWithContext,
	}
}

// Poll samples via check until terminal. The first sample happens
// immediately; the interval applies between samples.
func (p *Poller[T]) Poll(ctx context.Context, check func(ctx context.Context) (PollOutcome[T], error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		outcome, err := check(ctx)
		if err != nil {
			return zero, err
		}

		if outcome.Terminal {
			if outcome.Failed {
				if outcome.Error != nil {
					return zero, fmt.Errorf("operation failed: %w", outcome.Error)
				}
				return zero, fmt.Errorf("operation failed")
			}
			return outcome.Value, nil
		}

		if attempt == p.maxAttempts {
			break
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w: no terminal state after %d attempts", domain.ErrPollTimeout, p.maxAttempts)
}

// PollJob waits for a job to finish and returns its result. A cancelled
// job counts as terminal failure.
func PollJob(ctx context.Context, jobs *JobService, id string, interval time.Duration, maxAttempts int) (*domain.GenerationResult, error) {
	if interval <= 0 {
		interval = DefaultJobPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultJobPollAttempts
	}

	poller := NewPoller[*domain.GenerationResult](interval, maxAttempts)
	return poller.Poll(ctx, func(ctx context.Context) (PollOutcome[*domain.GenerationResult], error) {
		job, err := jobs.GetStatus(ctx, id)
		if err != nil {
			return PollOutcome[*domain.GenerationResult]{}, err
		}

		if !job.State.IsTerminal() {
			return PollOutcome[*domain.GenerationResult]{}, nil
		}

		if job.State != domain.JobStateCompleted {
			outcome := PollOutcome[*domain.GenerationResult]{Terminal: true, Failed: true, Error: job.Error}
			if outcome.Error == nil {
				outcome.Error = &domain.JobError{
					Code:    "JOB_" + job.State.String(),
					Message: fmt.Sprintf("job ended %s", job.State),
				}
			}
			return outcome, nil
		}

		return PollOutcome[*domain.GenerationResult]{Terminal: true, Value: job.Result}, nil
	})
}

// PollBatch waits for a batch to finish and returns its final snapshot.
// A batch that ends Failed or Cancelled is a terminal failure.
func PollBatch(ctx context.Context, batches *BatchService, id string, interval time.Duration, maxAttempts int) (*domain.Batch, error) {
	if interval <= 0 {
		interval = DefaultBatchPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultBatchPollAttempts
	}

	poller := NewPoller[*domain.Batch](interval, maxAttempts)
	return poller.Poll(ctx, func(ctx context.Context) (PollOutcome[*domain.Batch], error) {
		batch, err := batches.GetStatus(ctx, id)
		if err != nil {
			return PollOutcome[*domain.Batch]{}, err
		}

		if !batch.State.IsTerminal() {
			return PollOutcome[*domain.Batch]{}, nil
		}

		if batch.State != domain.BatchStateCompleted {
			return PollOutcome[*domain.Batch]{
				Terminal: true,
				Failed:   true,
				Error: &domain.JobError{
					Code:    "BATCH_" + batch.State.String(),
					Message: fmt.Sprintf("batch ended %s", batch.State),
				},
			}, nil
		}

		return PollOutcome[*domain.Batch]{Terminal: true, Value: batch}, nil
	})
}
