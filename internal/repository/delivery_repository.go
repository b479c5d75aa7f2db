package repository

import (
	"context"
	"time"

	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
)

type DeliveryRepository interface {
	// CreateBatch inserts the planned delivery rows for one or more notifications.
	CreateBatch(ctx context.Context, rows []*entity.DeliveryStatus) error
	// Update writes the outcome of an attempt.
	Update(ctx context.Context, row *entity.DeliveryStatus) error
	// ClaimDue atomically claims up to limit pending rows for channel whose
	// next_attempt_at is at or before now, oldest first. Claimed rows have their
	// next_attempt_at pushed to now+lease so that concurrent sweeps skip them.
	// Rows in any other state are never returned.
	ClaimDue(ctx context.Context, channel entity.Channel, now time.Time, lease time.Duration, limit int) ([]*entity.DeliveryStatus, error)
	ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]*entity.DeliveryStatus, error)
}
