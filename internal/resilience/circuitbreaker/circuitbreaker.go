// Package circuitbreaker wraps sony/gobreaker for the email provider, the push
// gateway and the notification store.
//
// A breaker trips on failure ratio rather than consecutive failures, records
// when it opened so health endpoints can report when a channel may recover,
// and exports its state to Prometheus.
package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions by target state",
		},
		[]string{"breaker", "to"},
	)
)

// Config configures one breaker.
type Config struct {
	Name string

	// MaxRequests is how many probes a half-open breaker lets through.
	MaxRequests uint32

	// Interval clears the closed-state counts; Timeout is how long the breaker stays open.
	Interval time.Duration
	Timeout  time.Duration

	// FailureThreshold is the failure ratio (0.6 = 60%) that trips the breaker
	// once at least MinRequests calls were counted.
	FailureThreshold float64
	MinRequests      uint32

	// IsSuccessful classifies errors that should not count as failures.
	// Nil means every non-nil error is a failure.
	IsSuccessful func(err error) bool
}

// DefaultConfig is used for a channel configured without an explicit policy.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          time.Minute,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// EmailProviderConfig guards the transactional email provider.
func EmailProviderConfig() Config {
	cfg := DefaultConfig("email-provider")
	cfg.Interval = time.Minute
	cfg.Timeout = 2 * time.Minute
	return cfg
}

// PushGatewayConfig guards the push gateway. Push is best-effort, so the
// breaker opens at a lower ratio and stays open longer.
func PushGatewayConfig() Config {
	cfg := DefaultConfig("push-gateway")
	cfg.MaxRequests = 2
	cfg.Interval = time.Minute
	cfg.Timeout = 5 * time.Minute
	cfg.FailureThreshold = 0.5
	return cfg
}

// CircuitBreaker is a gobreaker breaker that remembers when it last opened.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
	timeout time.Duration

	mu       sync.RWMutex
	openedAt time.Time
}

// New creates a closed breaker.
func New(cfg Config) *CircuitBreaker {
	cb := &CircuitBreaker{name: cfg.Name, timeout: cfg.Timeout}

	cb.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		IsSuccessful:  cfg.IsSuccessful,
		OnStateChange: cb.onStateChange,
	})
	breakerState.WithLabelValues(cfg.Name).Set(stateValue(gobreaker.StateClosed))
	return cb
}

func (cb *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	slog.Warn("circuit breaker state changed",
		slog.String("circuit", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	breakerState.WithLabelValues(name).Set(stateValue(to))
	breakerTransitions.WithLabelValues(name, to.String()).Inc()

	if to == gobreaker.StateOpen {
		cb.mu.Lock()
		cb.openedAt = time.Now()
		cb.mu.Unlock()
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

// Execute runs fn unless the breaker is open, in which case it returns
// gobreaker.ErrOpenState without calling fn.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.breaker.Execute(fn)
}

func (cb *CircuitBreaker) State() gobreaker.State { return cb.breaker.State() }

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) IsOpen() bool { return cb.breaker.State() == gobreaker.StateOpen }

// OpenUntil returns the earliest time an open breaker may half-open, or nil when not open.
func (cb *CircuitBreaker) OpenUntil() *time.Time {
	if !cb.IsOpen() {
		return nil
	}
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	until := cb.openedAt.Add(cb.timeout)
	return &until
}
