package app

import (
	"context"
	"time"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
)

// Scheduler runs the price sync cycle on a fixed interval.
type Scheduler struct {
	logger   *common.Logger
	sync     interfaces.SyncService
	interval time.Duration
	cancel   context.CancelFunc
}

func NewScheduler(logger *common.Logger, sync interfaces.SyncService, interval time.Duration) *Scheduler {
	return &Scheduler{
		logger:   logger,
		sync:     sync,
		interval: interval,
	}
}

// Start launches the sync loop in a goroutine. The first cycle runs one
// interval after startup; an immediate sync is available via the API.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
	s.logger.Info().Dur("interval", s.interval).Msg("Price sync scheduler started")
}

// Stop cancels the sync loop. A cycle already in flight finishes.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Price sync scheduler: stopped")
			return
		case <-ticker.C:
			start := time.Now()
			result, err := s.sync.RunCycle(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Scheduled price sync failed")
				continue
			}
			s.logger.Info().
				Int("records", len(result.Prices)).
				Dur("elapsed", time.Since(start)).
				Msg("Scheduled price sync complete")
		}
	}
}
