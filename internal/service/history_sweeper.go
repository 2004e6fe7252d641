package service

import (
	"context"
	"fmt"
	"time"

	"github.com/infogenhq/infogen-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultSweepInterval = time.Hour

// HistorySweeper periodically deletes generation records older than the
// configured retention.
type HistorySweeper struct {
	history   repository.HistoryRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger

	now func() time.Time
}

func NewHistorySweeper(
	history repository.HistoryRepository,
	retention time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) (*HistorySweeper, error) {
	if history == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HistorySweeper{
		history:   history,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *HistorySweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Sweep once up front so an overdue backlog does not wait for the
	// first ticker edge.
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *HistorySweeper) sweep(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.retention)
	deleted, err := s.history.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("history sweep failed", zap.Error(err))
		}
		return
	}
	if deleted > 0 {
		s.logger.Info("history sweep removed expired records",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
