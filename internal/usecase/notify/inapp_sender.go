package notify

import (
	"context"
	"log/slog"
	"time"

	"catchup-notify/internal/domain/entity"
)

// RealtimePublisher pushes an in-app notification to connected clients.
type RealtimePublisher interface {
	Publish(ctx context.Context, n *entity.Notification, locale string) error
}

// InAppSender marks in-app delivery. The notification is visible to queries as soon as
// its row exists, so Send never fails; the realtime publish is best-effort.
type InAppSender struct {
	publisher RealtimePublisher
	timeout   time.Duration
}

// NewInAppSender creates the in-app sender. publisher may be nil.
func NewInAppSender(publisher RealtimePublisher, timeout time.Duration) *InAppSender {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &InAppSender{publisher: publisher, timeout: timeout}
}

func (s *InAppSender) Channel() entity.Channel {
	return entity.ChannelInApp
}

func (s *InAppSender) Send(ctx context.Context, user *entity.User, n *entity.Notification) error {
	if s.publisher == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, n, user.Locale); err != nil {
		slog.Warn("realtime publish failed",
			slog.String("notification_id", n.ID.String()),
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err))
	}
	return nil
}

func (s *InAppSender) Health() ChannelHealthStatus {
	return ChannelHealthStatus{Name: string(entity.ChannelInApp), Enabled: true}
}
