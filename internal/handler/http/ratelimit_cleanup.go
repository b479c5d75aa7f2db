package http

import (
	"context"
	"log/slog"
	"time"
)

// StartRateLimitCleanup evicts idle visitors from limiter every interval and
// returns when ctx is done. name only labels the log lines.
func StartRateLimitCleanup(ctx context.Context, limiter *IPRateLimiter, interval time.Duration, name string) {
	log := slog.With(slog.String("limiter", name))
	log.Info("rate limiter eviction loop running", slog.Duration("every", interval))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n := limiter.Cleanup(); n > 0 {
				log.Debug("idle visitors evicted", slog.Int("count", n))
			}
		case <-ctx.Done():
			log.Info("rate limiter eviction loop stopped")
			return
		}
	}
}
