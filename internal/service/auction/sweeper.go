package auction

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically materializes Completed/Expired transitions for
// Active auctions past their end time. It holds the same per-auction
// lock discipline as bid admission.
type Sweeper struct {
	service  Service
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// NewSweeper creates a sweeper over the lifecycle service.
func NewSweeper(service Service, logger *slog.Logger, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{
		service:  service,
		logger:   logger,
		interval: interval,
		batch:    batch,
	}
}

// Run blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			finalized, err := s.service.SweepExpired(ctx, s.batch)
			if err != nil {
				s.logger.Error("expiry sweep failed", "error", err)
				continue
			}
			if finalized > 0 {
				s.logger.Info("expiry sweep finalized auctions", "count", finalized)
			}
		}
	}
}
