package grants

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically runs SweepExpired.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper returns a Sweeper running every interval.
func NewSweeper(service *Service, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps once immediately, then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.service.SweepExpired(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("grant sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
