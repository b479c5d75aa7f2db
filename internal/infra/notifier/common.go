package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// defaultRetryAfter applies when a 429 carries no usable Retry-After.
const defaultRetryAfter = 5 * time.Second

// RateLimitError is a provider 429. RetryAfter is the provider's hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limit exceeded"
	}
	return fmt.Sprintf("%s (retry after %v)", msg, e.RetryAfter)
}

// ClientError is a 4xx the provider will keep returning for the same request.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string { return e.Message }

// RecipientError means the address or device token is unusable.
type RecipientError struct {
	Recipient string
	Message   string
}

func (e *RecipientError) Error() string { return e.Message + ": " + e.Recipient }

// ServerError is a provider 5xx.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string { return e.Message }

// IsRetryable reports whether a later attempt could succeed. Only rejected
// requests, rejected recipients and caller cancellation are final.
func IsRetryable(err error) bool {
	var (
		clientErr    *ClientError
		recipientErr *RecipientError
	)
	switch {
	case err == nil,
		errors.As(err, &clientErr),
		errors.As(err, &recipientErr),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// classifyStatus turns a non-2xx response into one of the typed errors above.
func classifyStatus(provider string, resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusTooManyRequests:
		return &RateLimitError{Message: provider + " rate limit exceeded", RetryAfter: retryAfter(resp.Header)}
	case code >= 500:
		return &ServerError{StatusCode: code, Message: fmt.Sprintf("%s server error: %s", provider, body)}
	case code >= 400:
		return &ClientError{StatusCode: code, Message: fmt.Sprintf("%s client error: %s", provider, body)}
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", provider, code, body)
	}
}

// retryAfter understands the delta-seconds form only.
func retryAfter(h http.Header) time.Duration {
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

// wait blocks until limiter grants a token. A nil limiter never blocks.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}
	return nil
}

// truncate cuts text to at most limit bytes including suffix.
func truncate(text string, limit int, suffix string) string {
	if len(text) <= limit {
		return text
	}
	return text[:max(0, limit-len(suffix))] + suffix
}
