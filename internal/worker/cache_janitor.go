package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper purges expired cache entries and reports the live entries left.
type Sweeper interface {
	SweepExpired() int
}

// StartCacheJanitor sweeps expired cache entries every interval until ctx is
// done. The returned channel is closed once the loop has exited. A
// non-positive interval disables the janitor.
func StartCacheJanitor(ctx context.Context, sweeper Sweeper, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if sweeper == nil || interval <= 0 {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				live := sweeper.SweepExpired()
				logger.Debug("cache sweep", zap.Int("live_entries", live))
			}
		}
	}()
	return done
}
