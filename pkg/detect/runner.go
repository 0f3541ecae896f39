package detect

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner scans on a fixed interval.
type Runner struct {
	detector *Detector
	window   time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewRunner returns a Runner scanning window every interval.
func NewRunner(detector *Detector, window, interval time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{detector: detector, window: window, interval: interval, logger: logger}
}

// Run scans until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			created, err := r.detector.Scan(ctx, r.window)
			if err != nil && ctx.Err() == nil {
				r.logger.Error("suspicious activity scan failed", zap.Error(err))
				continue
			}
			if len(created) > 0 {
				r.logger.Info("suspicious activity scan raised alerts", zap.Int("count", len(created)))
			}
		}
	}
}
