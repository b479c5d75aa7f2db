package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catchup-notify/internal/domain/entity"
)

// RealtimeEvent is the message pushed to connected in-app clients.
type RealtimeEvent struct {
	NotificationID string                  `json:"notification_id"`
	Type           entity.NotificationType `json:"type"`
	Priority       entity.Priority         `json:"priority"`
	Title          string                  `json:"title"`
	Message        string                  `json:"message"`
	CreatedAt      time.Time               `json:"created_at"`
}

// Publisher fans in-app notifications out over Redis pub/sub.
type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends n to the user's realtime channel rendered in locale.
// Having no subscribers is not an error.
func (p *Publisher) Publish(ctx context.Context, n *entity.Notification, locale string) error {
	event := RealtimeEvent{
		NotificationID: n.ID.String(),
		Type:           n.Type,
		Priority:       n.Priority,
		Title:          n.Title.Pick(locale),
		Message:        n.Message.Pick(locale),
		CreatedAt:      n.CreatedAt,
	}
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	if err := p.client.Publish(ctx, RealtimeChannel(n.UserID.String()), string(b)); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}
