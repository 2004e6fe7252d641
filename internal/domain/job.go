package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobState represents the lifecycle state of a generation job.
type JobState string

const (
	JobStatePending    JobState = "PENDING"
	JobStateAnalyzing  JobState = "ANALYZING"
	JobStateGenerating JobState = "GENERATING"
	JobStateCompleted  JobState = "COMPLETED"
	JobStateFailed     JobState = "FAILED"
	JobStateCancelled  JobState = "CANCELLED"
)

func (s JobState) String() string { return string(s) }

func (s JobState) IsValid() bool {
	switch s {
	case JobStatePending, JobStateAnalyzing, JobStateGenerating,
		JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transitions occur.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

func ParseJobStateFromString(s string) (JobState, error) {
	st := JobState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid job state %q", ErrValidation, s)
	}
	return st, nil
}

// Machine-readable error codes recorded on failed jobs and batch items.
const (
	ErrCodeAnalysisFailed   = "ANALYSIS_FAILED"
	ErrCodeGenerationFailed = "GENERATION_FAILED"
)

// JobError carries the structured failure recorded on a failed job or item.
// Transient marks failures that could succeed on a fresh submission.
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Transient bool   `json:"transient,omitempty"`
}

func (e *JobError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Job is one infographic generation request tracked through the
// analysis and generation phases.
type Job struct {
	ID      string
	State   JobState
	Request GenerationRequest
	Result  *GenerationResult
	Error   *JobError

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// EstimatedCompletion is the sum of the two phases' expected durations,
	// computed once at creation.
	EstimatedCompletion time.Time
}

// CheckConsistency verifies the state/result/error exclusivity contract:
// completed jobs carry a result and no error, failed jobs the reverse,
// every other state carries neither.
func (j *Job) CheckConsistency() error {
	switch j.State {
	case JobStateCompleted:
		if j.Result == nil || j.Error != nil {
			return fmt.Errorf("%w: completed job %s must carry a result and no error", ErrInvalidState, j.ID)
		}
	case JobStateFailed:
		if j.Error == nil || j.Result != nil {
			return fmt.Errorf("%w: failed job %s must carry an error and no result", ErrInvalidState, j.ID)
		}
	default:
		if j.Result != nil || j.Error != nil {
			return fmt.Errorf("%w: job %s in state %s must carry neither result nor error", ErrInvalidState, j.ID, j.State)
		}
	}
	return nil
}
