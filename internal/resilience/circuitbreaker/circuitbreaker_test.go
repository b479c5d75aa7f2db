package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider 503")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errProvider })
	}
}

func TestNew_StartsClosed(t *testing.T) {
	cb := New(DefaultConfig("test-new"))

	assert.Equal(t, "test-new", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.False(t, cb.IsOpen())
	assert.Nil(t, cb.OpenUntil())
	assert.Equal(t, float64(0), testutil.ToFloat64(breakerState.WithLabelValues("test-new")))
}

func TestExecute_ReturnsResult(t *testing.T) {
	cb := New(DefaultConfig("test-result"))

	got, err := cb.Execute(func() (interface{}, error) { return "message-id", nil })
	require.NoError(t, err)
	assert.Equal(t, "message-id", got)

	_, err = cb.Execute(func() (interface{}, error) { return nil, errProvider })
	assert.ErrorIs(t, err, errProvider)
	assert.False(t, cb.IsOpen())
}

func TestTripsOnFailureRatio(t *testing.T) {
	cfg := DefaultConfig("test-ratio")
	cfg.MinRequests = 5
	cfg.FailureThreshold = 0.6
	cb := New(cfg)

	// 2 成功 + 2 失敗では MinRequests 未満
	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, nil })
	}
	failN(cb, 2)
	assert.False(t, cb.IsOpen())

	// 5 件中 3 件失敗 = 60%
	failN(cb, 1)
	assert.True(t, cb.IsOpen())

	calls := 0
	_, err := cb.Execute(func() (interface{}, error) { calls++; return nil, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Zero(t, calls)

	assert.Equal(t, float64(2), testutil.ToFloat64(breakerState.WithLabelValues("test-ratio")))
	assert.Equal(t, float64(1), testutil.ToFloat64(breakerTransitions.WithLabelValues("test-ratio", "open")))
}

func TestOpenUntil(t *testing.T) {
	cfg := DefaultConfig("test-until")
	cfg.MinRequests = 1
	cfg.Timeout = 2 * time.Minute
	cb := New(cfg)

	before := time.Now()
	failN(cb, 1)

	until := cb.OpenUntil()
	require.NotNil(t, until)
	assert.WithinDuration(t, before.Add(2*time.Minute), *until, time.Second)
}

func TestHalfOpenRecovers(t *testing.T) {
	cfg := DefaultConfig("test-half-open")
	cfg.MinRequests = 1
	cfg.MaxRequests = 1
	cfg.Timeout = 30 * time.Millisecond
	cb := New(cfg)

	failN(cb, 1)
	require.True(t, cb.IsOpen())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, float64(0), testutil.ToFloat64(breakerState.WithLabelValues("test-half-open")))
}

func TestIsSuccessful_ClientErrorsDoNotTrip(t *testing.T) {
	errRejected := errors.New("recipient inactive")
	cfg := DefaultConfig("test-classify")
	cfg.MinRequests = 2
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errRejected) }
	cb := New(cfg)

	for i := 0; i < 10; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, errRejected })
		assert.ErrorIs(t, err, errRejected)
	}
	assert.False(t, cb.IsOpen())
}

func TestProviderConfigs(t *testing.T) {
	email := EmailProviderConfig()
	assert.Equal(t, "email-provider", email.Name)
	assert.Equal(t, 2*time.Minute, email.Timeout)
	assert.Equal(t, 0.6, email.FailureThreshold)

	push := PushGatewayConfig()
	assert.Equal(t, "push-gateway", push.Name)
	assert.Equal(t, 5*time.Minute, push.Timeout)
	assert.Equal(t, 0.5, push.FailureThreshold)
	assert.Less(t, push.MaxRequests, email.MaxRequests)
}
