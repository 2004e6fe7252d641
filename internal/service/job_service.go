package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/infogenhq/infogen-engine/internal/domain"
	"github.com/infogenhq/infogen-engine/internal/notify"
	"github.com/infogenhq/infogen-engine/internal/observability"
	"github.com/infogenhq/infogen-engine/internal/pipeline"
	"github.com/infogenhq/infogen-engine/internal/repository"
	"github.com/infogenhq/infogen-engine/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	fromPending    = []domain.JobState{domain.JobStatePending}
	fromAnalyzing  = []domain.JobState{domain.JobStateAnalyzing}
	fromGenerating = []domain.JobState{domain.JobStateGenerating}
	fromActive     = []domain.JobState{
		domain.JobStatePending,
		domain.JobStateAnalyzing,
		domain.JobStateGenerating,
	}
)

// JobService owns the single-job generation lifecycle:
// Pending → Analyzing → Generating → Completed, or Failed/Cancelled.
// Creation is fire-and-forget; progress is observed via GetStatus.
type JobService struct {
	jobs     *store.JobStore
	pipe     pipeline.Pipeline
	logger   *zap.Logger
	metrics  *observability.Metrics
	history  repository.HistoryRepository
	notifier notify.Notifier

	expectedDuration time.Duration
	now              func() time.Time
	onRateLimited    func()
}

func NewJobService(jobs *store.JobStore, pipe pipeline.Pipeline, expectedDuration time.Duration, logger *zap.Logger) (*JobService, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if pipe == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if expectedDuration < 0 {
		expectedDuration = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobService{
		jobs:             jobs,
		pipe:             pipe,
		logger:           logger,
		expectedDuration: expectedDuration,
		now:              time.Now,
	}, nil
}

func (s *JobService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *JobService) SetHistory(history repository.HistoryRepository) {
	if s == nil {
		return
	}
	s.history = history
}

func (s *JobService) SetNotifier(notifier notify.Notifier) {
	if s == nil {
		return
	}
	s.notifier = notifier
}

// SetRateLimitSignal registers a callback fired when a phase fails because
// the upstream rejected the request for rate limiting. Clients use it to
// arm their local cooldown.
func (s *JobService) SetRateLimitSignal(fn func()) {
	if s == nil {
		return
	}
	s.onRateLimited = fn
}

// Create stores the job in Pending, kicks off the phase-advance goroutine,
// and returns the created snapshot. The snapshot reflects only the Pending
// state; later transitions are observed via GetStatus.
func (s *JobService) Create(ctx context.Context, request domain.GenerationRequest) (*domain.Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	request.Normalize()
	if err := request.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	job := domain.Job{
		ID:                  uuid.NewString(),
		State:               domain.JobStatePending,
		Request:             request,
		CreatedAt:           now,
		EstimatedCompletion: now.Add(s.expectedDuration),
	}
	s.jobs.Put(&job)
	s.metrics.IncJobCreated()

	s.logger.Info("job created",
		zap.String("jobId", job.ID),
		zap.String("topic", request.Topic),
	)

	// Detached from the caller's context: cancellation happens through
	// Cancel, not through the creation request ending.
	go s.advance(context.Background(), job.ID)

	return &job, nil
}

// GetStatus returns the current job snapshot.
func (s *JobService) GetStatus(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.jobs.Get(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%w: job %q", domain.ErrNotFound, id)
	}
	return &job, nil
}

// GetResult returns the completed result. Callers must check status first
// or rely on the poller.
func (s *JobService) GetResult(ctx context.Context, id string) (*domain.GenerationResult, error) {
	job, err := s.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != domain.JobStateCompleted {
		return nil, fmt.Errorf("%w: job %s is %s, result available only when completed", domain.ErrInvalidState, job.ID, job.State)
	}
	return job.Result, nil
}

// Cancel transitions the job to Cancelled from any non-terminal state.
// Cancelling an already-terminal job is an invalid-state error.
func (s *JobService) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	trimmed := strings.TrimSpace(id)
	ok := s.jobs.TrySetState(trimmed, fromActive, domain.JobStateCancelled, func(j *domain.Job) {
		completedAt := s.now().UTC()
		j.CompletedAt = &completedAt
	})
	if !ok {
		job, err := s.jobs.Get(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: job %q", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: job %s is already %s", domain.ErrInvalidState, job.ID, job.State)
	}

	s.metrics.IncJobCancelled()
	s.logger.Info("job cancelled", zap.String("jobId", trimmed))
	s.emit(ctx, notify.EventJobCancelled, trimmed, domain.JobStateCancelled.String(), "")

	job, err := s.jobs.Get(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: job %q", domain.ErrNotFound, id)
	}
	return &job, nil
}

// JobPage is one offset-paginated slice of the job list.
type JobPage struct {
	Jobs        []domain.Job
	Page        int
	PageSize    int
	TotalCount  int
	TotalPages  int
	HasNext     bool
	HasPrevious bool
}

// List returns jobs in stable insertion order, optionally filtered by
// state. Pages are 1-indexed.
func (s *JobService) List(ctx context.Context, filter store.ListFilter, page, pageSize int) (*JobPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, MaxPageSize)
	}

	jobs, total := s.jobs.List(filter, (page-1)*pageSize, pageSize)
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	return &JobPage{
		Jobs:        jobs,
		Page:        page,
		PageSize:    pageSize,
		TotalCount:  total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1 && total > 0,
	}, nil
}

// advance drives the two-phase pipeline. Every write is an allowed-state
// compare-and-swap: once a terminal state is recorded (e.g. by Cancel)
// the in-flight phase outcome is discarded.
func (s *JobService) advance(ctx context.Context, id string) {
	ok := s.jobs.TrySetState(id, fromPending, domain.JobStateAnalyzing, func(j *domain.Job) {
		startedAt := s.now().UTC()
		j.StartedAt = &startedAt
	})
	if !ok {
		return
	}

	job, err := s.jobs.Get(id)
	if err != nil {
		return
	}
	request := job.Request

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
		s.fail(ctx, id, domain.ErrCodeAnalysisFailed, err)
		return
	}

	if !s.jobs.TrySetState(id, fromAnalyzing, domain.JobStateGenerating, nil) {
		s.logger.Debug("discarding analysis outcome, job no longer analyzing", zap.String("jobId", id))
		return
	}

	generationStart := s.now()
	handle, err := s.pipe.Generate(ctx, pipeline.GenerateInput{
		Plan:        *plan,
		Size:        request.Size,
		AspectRatio: request.AspectRatio,
	})
	s.metrics.ObservePhaseDuration("generating", s.now().Sub(generationStart))
	if err != nil {
		s.fail(ctx, id, domain.ErrCodeGenerationFailed, err)
		return
	}

	result := &domain.GenerationResult{Analysis: *plan, Image: *handle}
	completedAt := s.now().UTC()
	ok = s.jobs.TrySetState(id, fromGenerating, domain.JobStateCompleted, func(j *domain.Job) {
		j.Result = result
		j.CompletedAt = &completedAt
	})
	if !ok {
		s.logger.Debug("discarding generation outcome, job no longer generating", zap.String("jobId", id))
		return
	}

	s.metrics.IncJobCompleted()
	s.logger.Info("job completed",
		zap.String("jobId", id),
		zap.String("imageUrl", handle.URL),
	)

	s.recordHistory(ctx, id, request, result, completedAt)
	s.emit(ctx, notify.EventJobCompleted, id, domain.JobStateCompleted.String(), "")
}

// fail normalizes an arbitrary phase error into the structured job error.
// Raw error values never leak into the record.
func (s *JobService) fail(ctx context.Context, id string, code string, cause error) {
	if pipeline.IsRateLimited(cause) && s.onRateLimited != nil {
		s.onRateLimited()
	}

	message := normalizeErrorMessage(code, cause)
	completedAt := s.now().UTC()

	ok := s.jobs.TrySetState(id, fromActive, domain.JobStateFailed, func(j *domain.Job) {
		j.Error = &domain.JobError{Code: code, Message: message, Transient: pipeline.IsTransient(cause)}
		j.CompletedAt = &completedAt
	})
	if !ok {
		s.logger.Debug("discarding phase failure, job already terminal", zap.String("jobId", id))
		return
	}

	phase := "analyzing"
	if code == domain.ErrCodeGenerationFailed {
		phase = "generating"
	}
	s.metrics.IncJobFailed(phase)
	s.logger.Warn("job failed",
		zap.String("jobId", id),
		zap.String("code", code),
		zap.Error(cause),
	)

	s.emit(ctx, notify.EventJobFailed, id, domain.JobStateFailed.String(), message)
}

func (s *JobService) recordHistory(ctx context.Context, jobID string, request domain.GenerationRequest, result *domain.GenerationResult, completedAt time.Time) {
	if s.history == nil {
		return
	}

	record := &domain.GenerationRecord{
		ID:          uuid.NewString(),
		JobID:       jobID,
		Topic:       request.Topic,
		Style:       request.Style,
		Title:       result.Analysis.Title,
		ImageURL:    result.Image.URL,
		ImageWidth:  result.Image.Width,
		ImageHeight: result.Image.Height,
		CompletedAt: completedAt,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.history.SaveGeneration(ctx, record); err != nil {
		s.logger.Error("failed to record generation history",
			zap.String("jobId", jobID),
			zap.Error(err),
		)
	}
}

// emit delivers a terminal event to the configured notifier. Delivery
// failure is logged, never surfaced into job state.
func (s *JobService) emit(ctx context.Context, eventType notify.EventType, id, state, errMessage string) {
	if s.notifier == nil {
		return
	}

	event := notify.Event{
		Type:       eventType,
		EntityID:   id,
		State:      state,
		Error:      errMessage,
		OccurredAt: s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("entityId", id),
			zap.String("eventType", string(eventType)),
			zap.Error(err),
		)
	}
}

func normalizeErrorMessage(code string, cause error) string {
	var pipelineErr *pipeline.PipelineError
	if errors.As(cause, &pipelineErr) && strings.TrimSpace(pipelineErr.Message) != "" {
		return pipelineErr.Message
	}

	switch code {
	case domain.ErrCodeAnalysisFailed:
		return "topic analysis failed"
	case domain.ErrCodeGenerationFailed:
		return "image generation failed"
	default:
		return "generation pipeline failed"
	}
}
