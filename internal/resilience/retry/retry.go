// Package retry holds the backoff policies of the notification engine.
//
// Failed channel deliveries are not retried in-process: the orchestrator
// stores the delivery as pending with a NextAttemptAt computed by NextDelay,
// and a later sweep picks it up. WithBackoff is only used for short
// synchronous retries such as the startup database ping.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Config is an exponential backoff policy.
type Config struct {
	// MaxAttempts counts every attempt, including the first.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFraction adds up to this fraction of the delay (0.0 to 1.0).
	JitterFraction float64
}

// PendingDeliveryConfig is the policy for failed channel deliveries.
// Five attempts in total, the first retry one minute after the failure,
// doubling up to one hour: 1m, 2m, 4m, 8m.
func PendingDeliveryConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   time.Minute,
		MaxDelay:       time.Hour,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// DBConfig retries transient connection failures quickly.
func DBConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// NextDelay returns the wait after the given number of failed attempts (1-based).
// The delay is capped at MaxDelay before jitter is added.
func NextDelay(cfg Config, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := cfg.InitialDelay
	for i := 1; i < attempts; i++ {
		d = time.Duration(float64(d) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && d >= cfg.MaxDelay {
			d = cfg.MaxDelay
			break
		}
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return jitter(d, cfg.JitterFraction)
}

// Exhausted reports whether no attempts remain after attempts failures.
func Exhausted(cfg Config, attempts int) bool {
	return attempts >= cfg.MaxAttempts
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. WithBackoff returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithBackoff calls fn until it succeeds, returns a Permanent error, the
// attempts run out or ctx is done.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := NextDelay(cfg, attempt)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	fraction = min(fraction, 1.0)
	// #nosec G404 -- backoff jitter does not need cryptographic randomness
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
