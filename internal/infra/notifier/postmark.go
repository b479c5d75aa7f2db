package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrz1836/postmark"
	"golang.org/x/time/rate"
)

// Postmark API error codes that mean the recipient address is unusable.
const (
	postmarkInvalidEmailRequest = 300
	postmarkInactiveRecipient   = 406
)

// ErrInvalidConfig is returned for incomplete provider configuration.
var ErrInvalidConfig = errors.New("notifier: invalid provider config")

// PostmarkConfig contains configuration for the Postmark email provider.
type PostmarkConfig struct {
	ServerToken   string
	AccountToken  string
	SenderEmail   string
	ReplyTo       string
	MessageStream string

	// RequestsPerSecond and Burst bound the send rate. Zero means 10 req/s, burst 20.
	RequestsPerSecond float64
	Burst             int
}

type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkProvider sends transactional email through Postmark.
type PostmarkProvider struct {
	client  postmarkAPI
	config  PostmarkConfig
	limiter *rate.Limiter
}

// NewPostmarkProvider creates a Postmark-backed EmailProvider.
func NewPostmarkProvider(cfg PostmarkConfig) (*PostmarkProvider, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	return &PostmarkProvider{
		client:  postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

// SendEmail makes a single Postmark API call.
//
// Error mapping:
//   - transport failure: returned as-is (retryable)
//   - error code 300/406: *RecipientError (non-retryable)
//   - other non-zero error code: *ClientError (non-retryable)
func (p *PostmarkProvider) SendEmail(ctx context.Context, msg EmailMessage) error {
	if err := wait(ctx, p.limiter); err != nil {
		return err
	}
	email := postmark.Email{
		From:          p.config.SenderEmail,
		ReplyTo:       p.config.ReplyTo,
		To:            msg.To,
		Subject:       msg.Subject,
		Tag:           msg.Tag,
		HTMLBody:      msg.HTMLBody,
		TextBody:      msg.TextBody,
		TrackOpens:    true,
		MessageStream: p.config.MessageStream,
	}
	if msg.UnsubscribeURL != "" {
		email.Headers = []postmark.Header{
			{Name: "List-Unsubscribe", Value: "<" + msg.UnsubscribeURL + ">"},
			{Name: "List-Unsubscribe-Post", Value: "List-Unsubscribe=One-Click"},
		}
	}

	resp, err := p.client.SendEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("postmark send: %w", err)
	}

	switch resp.ErrorCode {
	case 0:
		slog.Debug("postmark accepted message",
			slog.String("message_id", resp.MessageID),
			slog.String("tag", msg.Tag))
		return nil
	case postmarkInvalidEmailRequest, postmarkInactiveRecipient:
		return &RecipientError{Recipient: msg.To, Message: resp.Message}
	default:
		return &ClientError{
			StatusCode: int(resp.ErrorCode),
			Message:    fmt.Sprintf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		}
	}
}
