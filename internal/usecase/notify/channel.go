// Package notify provides the multi-channel notification delivery use cases.
// It resolves recipient preferences, fans notifications out to the in-app, email
// and push senders, tracks per-channel delivery status, retries pending deliveries
// and builds periodic digest emails.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/infra/notifier"
)

// Sender delivers a notification over one channel.
//
// Thread Safety:
//   - All methods must be safe for concurrent use by multiple goroutines
//
// Send makes exactly one attempt and reports failures as *SendError.
// Retrying is the Processor's job, never the sender's.
type Sender interface {
	Channel() entity.Channel
	Send(ctx context.Context, user *entity.User, n *entity.Notification) error
}

// SendErrorKind classifies a failed channel attempt.
type SendErrorKind string

const (
	SendInvalidAddress   SendErrorKind = "invalid_address"
	SendNoDevice         SendErrorKind = "no_device"
	SendProviderRejected SendErrorKind = "provider_rejected"
	SendTimeout          SendErrorKind = "timeout"
	SendUnavailable      SendErrorKind = "unavailable"
	SendInternal         SendErrorKind = "internal"
)

// SendError is the typed failure of one channel attempt.
type SendError struct {
	Channel entity.Channel
	Kind    SendErrorKind
	Err     error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Channel, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Channel, e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt may succeed.
func (e *SendError) Retryable() bool {
	return e.Kind == SendTimeout || e.Kind == SendUnavailable
}

// asSendError converts any error returned by a sender into a *SendError.
func asSendError(ch entity.Channel, err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return classifyProviderError(ch, err)
}

// classifyProviderError maps provider and context errors onto send error kinds.
func classifyProviderError(ch entity.Channel, err error) *SendError {
	var (
		recipientErr *notifier.RecipientError
		clientErr    *notifier.ClientError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &SendError{Channel: ch, Kind: SendTimeout, Err: err}
	case errors.Is(err, ErrCircuitBreakerOpen):
		return &SendError{Channel: ch, Kind: SendUnavailable, Err: err}
	case errors.As(err, &recipientErr):
		if ch == entity.ChannelPush {
			return &SendError{Channel: ch, Kind: SendNoDevice, Err: err}
		}
		return &SendError{Channel: ch, Kind: SendInvalidAddress, Err: err}
	case errors.As(err, &clientErr):
		return &SendError{Channel: ch, Kind: SendProviderRejected, Err: err}
	case notifier.IsRetryable(err):
		return &SendError{Channel: ch, Kind: SendUnavailable, Err: err}
	default:
		return &SendError{Channel: ch, Kind: SendInternal, Err: err}
	}
}

// ChannelHealthStatus represents the health status of a notification channel.
type ChannelHealthStatus struct {
	Name               string     // Channel name (in_app, email, push)
	Enabled            bool       // Whether a real provider is configured
	CircuitBreakerOpen bool       // Whether the provider breaker is currently open
	DisabledUntil      *time.Time // Earliest time the breaker may half-open (nil if closed)
}

// healthReporter is implemented by senders guarded by a circuit breaker.
type healthReporter interface {
	Health() ChannelHealthStatus
}
