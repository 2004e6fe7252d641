// Package notify delivers out-of-band terminal-state events over webhooks
// or an AMQP broker. Delivery outcome is never folded back into job or
// batch state.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventJobCompleted   EventType = "job.completed"
	EventJobFailed      EventType = "job.failed"
	EventJobCancelled   EventType = "job.cancelled"
	EventBatchCompleted EventType = "batch.completed"
	EventBatchFailed    EventType = "batch.failed"
	EventBatchCancelled EventType = "batch.cancelled"
)

// Event is the payload posted to webhook endpoints and published to the
// event queue.
type Event struct {
	Type       EventType `json:"type"`
	EntityID   string    `json:"entityId"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (e Event) Validate() error {
	if strings.TrimSpace(string(e.Type)) == "" {
		return fmt.Errorf("event type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		return fmt.Errorf("entityId is required")
	}
	return nil
}

// Notifier delivers a single event. Implementations must not block the
// orchestrator beyond their own timeout.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
