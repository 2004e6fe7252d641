package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BatchItemState represents the lifecycle state of one unit inside a batch.
type BatchItemState string

const (
	ItemStatePending    BatchItemState = "PENDING"
	ItemStateProcessing BatchItemState = "PROCESSING"
	ItemStateComplete   BatchItemState = "COMPLETE"
	ItemStateFailed     BatchItemState = "FAILED"
	ItemStateCancelled  BatchItemState = "CANCELLED"
)

func (s BatchItemState) String() string { return string(s) }

func (s BatchItemState) IsValid() bool {
	switch s {
	case ItemStatePending, ItemStateProcessing, ItemStateComplete,
		ItemStateFailed, ItemStateCancelled:
		return true
	}
	return false
}

func (s BatchItemState) IsTerminal() bool {
	switch s {
	case ItemStateComplete, ItemStateFailed, ItemStateCancelled:
		return true
	}
	return false
}

// BatchState represents the aggregate lifecycle state of a batch.
type BatchState string

const (
	BatchStatePending    BatchState = "PENDING"
	BatchStateProcessing BatchState = "PROCESSING"
	BatchStateCompleted  BatchState = "COMPLETED"
	BatchStateFailed     BatchState = "FAILED"
	BatchStateCancelled  BatchState = "CANCELLED"
	BatchStatePaused     BatchState = "PAUSED"
)

func (s BatchState) String() string { return string(s) }

func (s BatchState) IsValid() bool {
	switch s {
	case BatchStatePending, BatchStateProcessing, BatchStateCompleted,
		BatchStateFailed, BatchStateCancelled, BatchStatePaused:
		return true
	}
	return false
}

func (s BatchState) IsTerminal() bool {
	switch s {
	case BatchStateCompleted, BatchStateFailed, BatchStateCancelled:
		return true
	}
	return false
}

// BatchItem is one unit inside a batch: structurally a restricted job
// with no independent polling surface.
type BatchItem struct {
	ID      string
	Request GenerationRequest
	State   BatchItemState
	Result  *GenerationResult
	Error   *JobError

	StartedAt   *time.Time
	CompletedAt *time.Time
}

// BatchProgress aggregates per-item status counts. The four buckets must
// always sum to Total.
type BatchProgress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}

// CheckSum verifies the progress sum invariant.
func (p BatchProgress) CheckSum() error {
	if p.Completed+p.Failed+p.Pending+p.Processing != p.Total {
		return fmt.Errorf("%w: progress counts %d+%d+%d+%d do not sum to total %d",
			ErrInvalidState, p.Completed, p.Failed, p.Pending, p.Processing, p.Total)
	}
	return nil
}

// BatchConfig is the per-batch processing policy.
type BatchConfig struct {
	DelayBetweenItems time.Duration
	StopOnError       bool
	WebhookURL        string
}

func (c *BatchConfig) Validate() error {
	if c.DelayBetweenItems < 0 {
		return fmt.Errorf("%w: delayBetweenItems must be >= 0", ErrValidation)
	}
	if trimmed := strings.TrimSpace(c.WebhookURL); trimmed != "" {
		u, err := url.ParseRequestURI(trimmed)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: webhook URL must be a valid http(s) URL", ErrValidation)
		}
	}
	return nil
}

// Batch groups an ordered sequence of items processed under one
// delay/stop-on-error policy.
type Batch struct {
	ID       string
	Name     string
	Items    []BatchItem
	Config   BatchConfig
	State    BatchState
	Progress BatchProgress

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// RecountProgress derives the aggregate counts from the item states.
func (b *Batch) RecountProgress() {
	progress := BatchProgress{Total: len(b.Items)}
	for i := range b.Items {
		switch b.Items[i].State {
		case ItemStateComplete:
			progress.Completed++
		case ItemStateFailed:
			progress.Failed++
		case ItemStateProcessing:
			progress.Processing++
		default:
			progress.Pending++
		}
	}
	b.Progress = progress
}
