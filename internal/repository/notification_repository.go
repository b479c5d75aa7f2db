package repository

import (
	"context"

	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	// CreateBatch inserts every notification in one statement.
	// Used by bulk delivery so a recipient's notifications cost one round trip.
	CreateBatch(ctx context.Context, ns []*entity.Notification) error
	// Get returns (nil, nil) if the notification does not exist.
	Get(ctx context.Context, id uuid.UUID) (*entity.Notification, error)
}
