package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/notify"
	"github.com/infogenhq/infogen-engine/internal/observability"
	"github.com/infogenhq/infogen-engine/internal/pipeline"
	"github.com/infogenhq/infogen-engine/internal/store"
	"go.uber.org/zap"
)

const (
	maxBatchSize = 100

	// pauseCheckInterval bounds how long a paused run loop waits before
	// re-checking the batch state.
	pauseCheckInterval = 50 * time.Millisecond
)

// BatchService sequences an ordered collection of generation items through
// the same two-phase pipeline, one item at a time, under a per-batch
// delay/stop-on-error policy.
type BatchService struct {
	batches  *store.BatchStore
	pipe     pipeline.Pipeline
	logger   *zap.Logger
	metrics  *observability.Metrics
	notifier notify.Notifier

	webhookFactory func(url string) (notify.Notifier, error)
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
	onRateLimited  func()
}

func NewBatchService(batches *store.BatchStore, pipe pipeline.Pipeline, logger *zap.Logger) (*BatchService, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if pipe == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		batches: batches,
		pipe:    pipe,
		logger:  logger,
		webhookFactory: func(url string) (notify.Notifier, error) {
			return notify.NewWebhookNotifier(url)
		},
		now:   time.Now,
		sleep: sleepWithContext,
	}, nil
}

func (s *BatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *BatchService) SetNotifier(notifier notify.Notifier) {
	if s == nil {
		return
	}
	s.notifier = notifier
}

// SetRateLimitSignal registers a callback fired when an item phase fails
// because the upstream rejected the request for rate limiting.
func (s *BatchService) SetRateLimitSignal(fn func()) {
	if s == nil {
		return
	}
	s.onRateLimited = fn
}

// Create allocates the batch atomically with all items Pending and kicks
// off the asynchronous run loop.
func (s *BatchService) Create(ctx context.Context, name string, requests []domain.GenerationRequest, config domain.BatchConfig) (*domain.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: batch must include at least one item", domain.ErrValidation)
	}
	if len(requests) > maxBatchSize {
		return nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, maxBatchSize)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	items := make([]domain.BatchItem, len(requests))
	for i := range requests {
		request := requests[i]
		request.Normalize()
		if err := request.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items[i] = domain.BatchItem{
			ID:      uuid.NewString(),
			Request: request,
			State:   domain.ItemStatePending,
		}
	}

	batch := domain.Batch{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Items:     items,
		Config:    config,
		State:     domain.BatchStatePending,
		Progress:  domain.BatchProgress{Total: len(items), Pending: len(items)},
		CreatedAt: s.now().UTC(),
	}
	s.batches.Put(&batch)
	s.metrics.IncBatchCreated()

	s.logger.Info("batch created",
		zap.String("batchId", batch.ID),
		zap.String("name", batch.Name),
		zap.Int("items", len(items)),
	)

	go s.run(context.Background(), batch.ID)

	return &batch, nil
}

// GetStatus returns a deep snapshot of the batch, aggregate progress
// included.
func (s *BatchService) GetStatus(ctx context.Context, id string) (*domain.Batch, error) {
	batch, err := s.batches.Get(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%w: batch %q", domain.ErrNotFound, id)
	}
	return &batch, nil
}

// GetResults returns the per-item outcomes alongside the aggregate
// progress. Unlike single-job results this never errors on non-terminal
// state: partial results are part of the batch contract.
func (s *BatchService) GetResults(ctx context.Context, id string) ([]domain.BatchItem, domain.BatchProgress, error) {
	batch, err := s.GetStatus(ctx, id)
	if err != nil {
		return nil, domain.BatchProgress{}, err
	}
	return batch.Items, batch.Progress, nil
}

// Cancel halts future item processing. Items already terminal keep their
// status; non-terminal items are left as they are rather than
// force-transitioned. Cancelling an already-terminal batch is an
// invalid-state error.
func (s *BatchService) Cancel(ctx context.Context, id string) (*domain.Batch, error) {
	trimmed := strings.TrimSpace(id)
	err := s.batches.Update(trimmed, func(b *domain.Batch) error {
		if b.State.IsTerminal() {
			return fmt.Errorf("%w: batch %s is already %s", domain.ErrInvalidState, b.ID, b.State)
		}
		b.State = domain.BatchStateCancelled
		completedAt := s.now().UTC()
		b.CompletedAt = &completedAt
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: batch %q", domain.ErrNotFound, id)
		}
		return nil, err
	}

	s.metrics.IncBatchFinished(domain.BatchStateCancelled.String())
	s.logger.Info("batch cancelled", zap.String("batchId", trimmed))
	s.notifyBatch(ctx, trimmed, notify.EventBatchCancelled, domain.BatchStateCancelled)

	return s.GetStatus(ctx, trimmed)
}

// Pause holds the run loop between items. In-flight item processing
// finishes and is recorded normally.
func (s *BatchService) Pause(ctx context.Context, id string) (*domain.Batch, error) {
	trimmed := strings.TrimSpace(id)
	err := s.batches.Update(trimmed, func(b *domain.Batch) error {
		if b.State != domain.BatchStateProcessing && b.State != domain.BatchStatePending {
			return fmt.Errorf("%w: batch %s is %s, only pending or processing batches can pause", domain.ErrInvalidState, b.ID, b.State)
		}
		b.State = domain.BatchStatePaused
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: batch %q", domain.ErrNotFound, id)
		}
		return nil, err
	}

	s.logger.Info("batch paused", zap.String("batchId", trimmed))
	return s.GetStatus(ctx, trimmed)
}

// Resume releases a paused batch back into processing.
func (s *BatchService) Resume(ctx context.Context, id string) (*domain.Batch, error) {
	trimmed := strings.TrimSpace(id)
	err := s.batches.Update(trimmed, func(b *domain.Batch) error {
		if b.State != domain.BatchStatePaused {
			return fmt.Errorf("%w: batch %s is %s, only paused batches can resume", domain.ErrInvalidState, b.ID, b.State)
		}
		b.State = domain.BatchStateProcessing
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: batch %q", domain.ErrNotFound, id)
		}
		return nil, err
	}

	s.logger.Info("batch resumed", zap.String("batchId", trimmed))
	return s.GetStatus(ctx, trimmed)
}

// Retry re-queues the named failed items, or every failed item when ids is
// empty. Items keep their original identity so results stay addressable
// across retries. Completed items are never touched.
func (s *BatchService) Retry(ctx context.Context, id string, itemIDs []string) (*domain.Batch, error) {
	trimmed := strings.TrimSpace(id)

	requested := make(map[string]bool, len(itemIDs))
	for _, itemID := range itemIDs {
		requested[strings.TrimSpace(itemID)] = true
	}

	requeued := 0
	err := s.batches.Update(trimmed, func(b *domain.Batch) error {
		if !b.State.IsTerminal() {
			return fmt.Errorf("%w: batch %s is %s, retry requires a finished batch", domain.ErrInvalidState, b.ID, b.State)
		}

		for i := range b.Items {
			item := &b.Items[i]
			if item.State != domain.ItemStateFailed {
				continue
			}
			if len(requested) > 0 && !requested[item.ID] {
				continue
			}
			item.State = domain.ItemStatePending
			item.Error = nil
			item.StartedAt = nil
			item.CompletedAt = nil
			requeued++
		}

		if requeued == 0 {
			return fmt.Errorf("%w: no failed items matched the retry request", domain.ErrValidation)
		}

		b.State = domain.BatchStateProcessing
		b.CompletedAt = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: batch %q", domain.ErrNotFound, id)
		}
		return nil, err
	}

	s.logger.Info("batch retry requested",
		zap.String("batchId", trimmed),
		zap.Int("requeued", requeued),
	)

	go s.run(context.Background(), trimmed)

	return s.GetStatus(ctx, trimmed)
}

// run is the batch processing loop: strict submission order, one item at
// a time, a delay between items, and an immediate halt on failure when
// StopOnError is set.
func (s *BatchService) run(ctx context.Context, id string) {
	batch, err := s.batches.Get(id)
	if err != nil {
		return
	}

	_ = s.batches.Update(id, func(b *domain.Batch) error {
		if b.State == domain.BatchStatePending {
			b.State = domain.BatchStateProcessing
		}
		return nil
	})

	halted := false

	for i := range batch.Items {
		state, waitErr := s.waitWhilePaused(ctx, id)
		if waitErr != nil || state == domain.BatchStateCancelled {
			return
		}

		itemID := batch.Items[i].ID
		if !s.markItemProcessing(id, itemID) {
			continue
		}

		failed := s.processItem(ctx, id, itemID)

		if failed && batch.Config.StopOnError {
			halted = true
			break
		}

		if i < len(batch.Items)-1 && batch.Config.DelayBetweenItems > 0 {
			if err := s.sleep(ctx, batch.Config.DelayBetweenItems); err != nil {
				return
			}
		}
	}

	s.finish(ctx, id, halted)
}

// waitWhilePaused blocks while the batch is Paused, returning the state
// that released the wait.
func (s *BatchService) waitWhilePaused(ctx context.Context, id string) (domain.BatchState, error) {
	for {
		batch, err := s.batches.Get(id)
		if err != nil {
			return "", err
		}
		if batch.State != domain.BatchStatePaused {
			return batch.State, nil
		}
		if err := s.sleep(ctx, pauseCheckInterval); err != nil {
			return "", err
		}
	}
}

// markItemProcessing is the item-level compare-and-swap: only Pending
// items are picked up, so retried loops skip work that already finished.
func (s *BatchService) markItemProcessing(batchID, itemID string) bool {
	marked := false
	_ = s.batches.Update(batchID, func(b *domain.Batch) error {
		if b.State == domain.BatchStateCancelled {
			return nil
		}
		for i := range b.Items {
			item := &b.Items[i]
			if item.ID != itemID || item.State != domain.ItemStatePending {
				continue
			}
			item.State = domain.ItemStateProcessing
			startedAt := s.now().UTC()
			item.StartedAt = &startedAt
			marked = true
			return nil
		}
		return nil
	})
	return marked
}

// processItem runs the two-phase pipeline for one item and records the
// outcome. Returns true when the item failed. An outcome arriving after
// the batch was cancelled is discarded, leaving the item as-is.
func (s *BatchService) processItem(ctx context.Context, batchID, itemID string) bool {
	batch, err := s.batches.Get(batchID)
	if err != nil {
		return false
	}

	var request domain.GenerationRequest
	found := false
	for i := range batch.Items {
		if batch.Items[i].ID == itemID {
			request = batch.Items[i].Request
			found = true
			break
		}
	}
	if !found {
		return false
	}

	result, jobErr := s.runPhases(ctx, request)

	failed := jobErr != nil
	completedAt := s.now().UTC()
	_ = s.batches.Update(batchID, func(b *domain.Batch) error {
		if b.State == domain.BatchStateCancelled {
			failed = false
			return nil
		}
		for i := range b.Items {
			item := &b.Items[i]
			if item.ID != itemID || item.State != domain.ItemStateProcessing {
				continue
			}
			item.CompletedAt = &completedAt
			if jobErr != nil {
				item.State = domain.ItemStateFailed
				item.Error = jobErr
			} else {
				item.State = domain.ItemStateComplete
				item.Result = result
			}
			return nil
		}
		return nil
	})

	if jobErr != nil {
		s.logger.Warn("batch item failed",
			zap.String("batchId", batchID),
			zap.String("itemId", itemID),
			zap.String("code", jobErr.Code),
		)
	}

	return failed
}

func (s *BatchService) runPhases(ctx context.Context, request domain.GenerationRequest) (*domain.GenerationResult, *domain.JobError) {
	analysisStart := s.now()
	plan, err := s.pipe.Analyze(ctx, pipeline.AnalyzeInput{
		Topic:       request.Topic,
		Style:       request.Style,
		Palette:     request.Palette,
		Filters:     request.Filters,
		FileContent: request.FileContent,
	})
	s.metrics.ObservePhaseDuration("analyzing", s.now().Sub(analysisStart))
	if err != nil {
		s.signalIfRateLimited(err)
		return nil, &domain.JobError{
			Code:      domain.ErrCodeAnalysisFailed,
			Message:   normalizeErrorMessage(domain.ErrCodeAnalysisFailed, err),
			Transient: pipeline.IsTransient(err),
		}
	}

	generationStart := s.now()
	handle, err := s.pipe.Generate(ctx, pipeline.GenerateInput{
		Plan:        *plan,
		Size:        request.Size,
		AspectRatio: request.AspectRatio,
	})
	s.metrics.ObservePhaseDuration("generating", s.now().Sub(generationStart))
	if err != nil {
		s.signalIfRateLimited(err)
		return nil, &domain.JobError{
			Code:      domain.ErrCodeGenerationFailed,
			Message:   normalizeErrorMessage(domain.ErrCodeGenerationFailed, err),
			Transient: pipeline.IsTransient(err),
		}
	}

	return &domain.GenerationResult{Analysis: *plan, Image: *handle}, nil
}

func (s *BatchService) signalIfRateLimited(err error) {
	if pipeline.IsRateLimited(err) && s.onRateLimited != nil {
		s.onRateLimited()
	}
}

// finish derives the terminal batch state: Failed when StopOnError halted
// the loop, Completed otherwise (failures under StopOnError=false do not
// fail the batch). A cancellation recorded meanwhile is sticky.
func (s *BatchService) finish(ctx context.Context, id string, halted bool) {
	final := domain.BatchStateCompleted
	if halted {
		final = domain.BatchStateFailed
	}

	finished := false
	_ = s.batches.Update(id, func(b *domain.Batch) error {
		if b.State == domain.BatchStateCancelled {
			return nil
		}
		b.State = final
		completedAt := s.now().UTC()
		b.CompletedAt = &completedAt
		finished = true
		return nil
	})
	if !finished {
		return
	}

	s.metrics.IncBatchFinished(final.String())
	s.logger.Info("batch finished",
		zap.String("batchId", id),
		zap.String("state", final.String()),
	)

	eventType := notify.EventBatchCompleted
	if final == domain.BatchStateFailed {
		eventType = notify.EventBatchFailed
	}
	s.notifyBatch(ctx, id, eventType, final)
}

// notifyBatch delivers the terminal event to the global notifier and, when
// the batch carries its own webhook URL, to that endpoint as well.
func (s *BatchService) notifyBatch(ctx context.Context, id string, eventType notify.EventType, state domain.BatchState) {
	batch, err := s.batches.Get(id)
	if err != nil {
		return
	}

	event := notify.Event{
		Type:       eventType,
		EntityID:   id,
		State:      state.String(),
		OccurredAt: s.now().UTC(),
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("batch event delivery failed",
				zap.String("batchId", id),
				zap.Error(err),
			)
		}
	}

	if url := strings.TrimSpace(batch.Config.WebhookURL); url != "" {
		webhook, err := s.webhookFactory(url)
		if err != nil {
			s.logger.Warn("invalid batch webhook",
				zap.String("batchId", id),
				zap.Error(err),
			)
			return
		}
		if err := webhook.Notify(ctx, event); err != nil {
			s.logger.Warn("batch webhook delivery failed",
				zap.String("batchId", id),
				zap.Error(err),
			)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
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
}
