package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Resolver returns the effective channel preferences of a user.
// A missing row yields the platform defaults. Invalid stored state is normalized
// field by field and logged, never returned as an error.
type Resolver struct {
	repo  repository.PreferenceRepository
	group singleflight.Group
}

func NewResolver(repo repository.PreferenceRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve is safe for concurrent use. Concurrent lookups for the same user share one query.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (entity.NotificationPreferences, error) {
	v, err, _ := r.group.Do(userID.String(), func() (interface{}, error) {
		stored, err := r.repo.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve preferences: %w", err)
		}
		if stored == nil {
			return entity.DefaultPreferences(userID), nil
		}

		prefs := *stored
		prefs.MutedTypes = slices.Clone(stored.MutedTypes)
		if prefs.Normalize() {
			RecordInvalidPreferences()
			slog.Warn("invalid preference state normalized to defaults",
				slog.String("user_id", userID.String()),
				slog.String("stored_frequency", string(stored.DigestFrequency)),
				slog.Int("stored_muted_types", len(stored.MutedTypes)))
		}
		return prefs, nil
	})
	if err != nil {
		return entity.NotificationPreferences{}, err
	}

	// 共有結果のスライスを呼び出し側で書き換えられないようにコピー
	prefs := v.(entity.NotificationPreferences)
	prefs.MutedTypes = slices.Clone(prefs.MutedTypes)
	return prefs, nil
}
