package notify

import (
	"context"
	"errors"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/infra/notifier"
	"catchup-notify/internal/resilience/circuitbreaker"

	"github.com/sony/gobreaker"
)

// guardedCall runs provider calls for one channel through a circuit breaker
// with a mandatory per-call timeout.
type guardedCall struct {
	channel entity.Channel
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	enabled bool
}

func newGuardedCall(ch entity.Channel, cfg circuitbreaker.Config, timeout time.Duration, enabled bool) guardedCall {
	if cfg.MinRequests == 0 && cfg.FailureThreshold == 0 {
		cfg = circuitbreaker.DefaultConfig(string(ch))
	}
	if cfg.IsSuccessful == nil {
		// 宛先不正やリクエスト不正はプロバイダ障害として数えない
		cfg.IsSuccessful = func(err error) bool {
			return err == nil || !notifier.IsRetryable(err)
		}
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return guardedCall{
		channel: ch,
		breaker: circuitbreaker.New(cfg),
		timeout: timeout,
		enabled: enabled,
	}
}

// ready fails while the channel is backed by a no-op provider.
func (g guardedCall) ready() error {
	if g.enabled {
		return nil
	}
	return &SendError{Channel: g.channel, Kind: SendUnavailable, Err: ErrChannelDisabled}
}

func (g guardedCall) do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		RecordCircuitBreakerRejected(string(g.channel))
		return ErrCircuitBreakerOpen
	}
	return err
}

// Health implements healthReporter.
func (g guardedCall) Health() ChannelHealthStatus {
	return ChannelHealthStatus{
		Name:               string(g.channel),
		Enabled:            g.enabled,
		CircuitBreakerOpen: g.breaker.IsOpen(),
		DisabledUntil:      g.breaker.OpenUntil(),
	}
}
