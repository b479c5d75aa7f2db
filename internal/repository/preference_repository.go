package repository

import (
	"context"

	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
)

type PreferenceRepository interface {
	// Get returns (nil, nil) when the user has no stored preferences.
	Get(ctx context.Context, userID uuid.UUID) (*entity.NotificationPreferences, error)
	Upsert(ctx context.Context, prefs *entity.NotificationPreferences) error
	// MuteType adds t to the user's muted types, creating a default row if none exists.
	MuteType(ctx context.Context, userID uuid.UUID, t entity.NotificationType) error
	ListUserIDsByFrequency(ctx context.Context, freq entity.DigestFrequency) ([]uuid.UUID, error)
}
