// Package notifier provides the outbound provider clients used by the channel senders.
// It defines the EmailProvider and PushProvider interfaces so that the transactional email
// service and the push gateway can be swapped through dependency injection.
//
// The package includes a Postmark email provider, an HTTP push gateway client and no-op
// providers for when a channel is disabled.
package notifier

import (
	"context"
)

// EmailMessage is one rendered email ready for the provider.
type EmailMessage struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	// Tag groups messages in provider analytics, e.g. the notification type.
	Tag string
	// UnsubscribeURL is emitted as a List-Unsubscribe header when set.
	UnsubscribeURL string
}

// EmailProvider sends a single email.
// Implementations make exactly one attempt; retries are scheduled by the caller.
type EmailProvider interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// PushMessage is one push notification addressed to every device of a user.
type PushMessage struct {
	Tokens   []string          `json:"tokens"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data,omitempty"`
}

// PushProvider delivers push notifications to device tokens.
type PushProvider interface {
	SendPush(ctx context.Context, msg PushMessage) error
}
