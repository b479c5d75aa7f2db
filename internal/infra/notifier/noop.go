package notifier

import (
	"context"
)

// NoOpProvider is used when a channel is not configured to avoid null checks in the code.
// It implements both EmailProvider and PushProvider.
type NoOpProvider struct{}

func NewNoOpProvider() *NoOpProvider {
	return &NoOpProvider{}
}

// SendEmail does nothing and returns nil immediately.
func (n *NoOpProvider) SendEmail(ctx context.Context, msg EmailMessage) error {
	return nil
}

// SendPush does nothing and returns nil immediately.
func (n *NoOpProvider) SendPush(ctx context.Context, msg PushMessage) error {
	return nil
}
