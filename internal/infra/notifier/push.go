package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	maxPushTitleLength = 120
	maxPushBodyLength  = 1024
	truncationSuffix   = "..."
)

// PushGatewayConfig contains configuration for the HTTP push gateway.
type PushGatewayConfig struct {
	// URL is the gateway send endpoint
	URL string

	// APIKey is sent as a bearer token
	APIKey string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RequestsPerSecond and Burst configure client-side rate limiting
	RequestsPerSecond float64
	Burst             int
}

// PushGateway sends push notifications to an HTTP gateway that fans out to APNs/FCM.
type PushGateway struct {
	config      PushGatewayConfig
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewPushGateway creates a gateway client. Zero rate settings default to 50 req/s, burst 100.
func NewPushGateway(config PushGatewayConfig) (*PushGateway, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: push gateway url is required", ErrInvalidConfig)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 50
	}
	if config.Burst <= 0 {
		config.Burst = 100
	}
	return &PushGateway{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}, nil
}

// pushErrorResponse is the gateway's error body.
type pushErrorResponse struct {
	Error         string   `json:"error"`
	InvalidTokens []string `json:"invalid_tokens"`
}

// SendPush makes one gateway request after waiting for a rate-limit token.
//
// Error types:
//   - 404/410: *RecipientError (every token unregistered, non-retryable)
//   - 429: *RateLimitError (retryable)
//   - other 4xx: *ClientError (non-retryable)
//   - 5xx: *ServerError (retryable)
func (g *PushGateway) SendPush(ctx context.Context, msg PushMessage) error {
	if err := wait(ctx, g.limiter); err != nil {
		return err
	}

	msg.Title = truncate(msg.Title, maxPushTitleLength, truncationSuffix)
	msg.Body = truncate(msg.Body, maxPushBodyLength, truncationSuffix)

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if g.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.Debug("push gateway accepted message",
			slog.String("request_id", requestID),
			slog.Int("tokens", len(msg.Tokens)))
		return nil
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		var errResp pushErrorResponse
		_ = json.Unmarshal(body, &errResp)
		reason := errResp.Error
		if reason == "" {
			reason = "device token not registered"
		}
		return &RecipientError{Recipient: strings.Join(errResp.InvalidTokens, ","), Message: reason}
	}

	return classifyStatus("push gateway", resp, body)
}
