package domain

import "time"

// GenerationRecord is the persisted trace of a completed generation,
// retained for the saved-history surface.
type GenerationRecord struct {
	ID          string
	JobID       string
	Topic       string
	Style       string
	Title       string
	ImageURL    string
	ImageWidth  int
	ImageHeight int
	CompletedAt time.Time
	CreatedAt   time.Time
}
