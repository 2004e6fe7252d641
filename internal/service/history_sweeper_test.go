package service

import (
	"context"
	"testing"
	"time"

	"github.com/infogenhq/infogen-engine/internal/domain"
	"go.uber.org/zap"
)

func TestHistorySweeperDeletesExpiredRecords(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := &recordingHistory{records: []domain.GenerationRecord{
		{JobID: "old", CompletedAt: now.Add(-48 * time.Hour)},
		{JobID: "fresh", CompletedAt: now.Add(-time.Hour)},
	}}

	sweeper, err := NewHistorySweeper(history, 24*time.Hour, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHistorySweeper: %v", err)
	}
	sweeper.now = func() time.Time { return now }

	sweeper.sweep(context.Background())

	remaining := history.saved()
	if len(remaining) != 1 || remaining[0].JobID != "fresh" {
		t.Fatalf("records after sweep = %+v, want only the fresh one", remaining)
	}
}

func TestHistorySweeperStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	history := &recordingHistory{}
	sweeper, err := NewHistorySweeper(history, 24*time.Hour, time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHistorySweeper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}

func TestHistorySweeperRequiresRetention(t *testing.T) {
	t.Parallel()

	if _, err := NewHistorySweeper(&recordingHistory{}, 0, time.Hour, zap.NewNop()); err == nil {
		t.Fatal("expected an error for zero retention")
	}
	if _, err := NewHistorySweeper(nil, time.Hour, time.Hour, zap.NewNop()); err == nil {
		t.Fatal("expected an error for a nil repository")
	}
}
