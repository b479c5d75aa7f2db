package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPreferenceTTL = 5 * time.Minute
	missingMarker        = "null"
)

// cachedPreferences is the Redis representation of a preferences row.
type cachedPreferences struct {
	UserID          uuid.UUID                 `json:"user_id"`
	InAppEnabled    bool                      `json:"in_app_enabled"`
	EmailEnabled    bool                      `json:"email_enabled"`
	PushEnabled     bool                      `json:"push_enabled"`
	DigestFrequency entity.DigestFrequency    `json:"digest_frequency"`
	MutedTypes      []entity.NotificationType `json:"muted_types"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type preferenceCache struct {
	next   repository.PreferenceRepository
	client *Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPreferenceCache wraps next with a read-through Redis cache.
// Redis failures are logged and fall through to next; they never fail a read.
func NewPreferenceCache(next repository.PreferenceRepository, client *Client, ttl time.Duration, logger *slog.Logger) repository.PreferenceRepository {
	if ttl <= 0 {
		ttl = defaultPreferenceTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &preferenceCache{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *preferenceCache) Get(ctx context.Context, userID uuid.UUID) (*entity.NotificationPreferences, error) {
	key := c.client.PreferencesKey(userID.String())

	raw, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		if raw == missingMarker {
			return nil, nil
		}
		var cp cachedPreferences
		if jerr := json.Unmarshal([]byte(raw), &cp); jerr == nil {
			prefs := cp.toEntity()
			return &prefs, nil
		}
		c.logger.Warn("discarding unreadable cached preferences",
			slog.String("user_id", userID.String()))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("preference cache read failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
	}

	prefs, err := c.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, prefs)
	return prefs, nil
}

func (c *preferenceCache) Upsert(ctx context.Context, prefs *entity.NotificationPreferences) error {
	if err := c.next.Upsert(ctx, prefs); err != nil {
		return err
	}
	c.invalidate(ctx, prefs.UserID)
	return nil
}

func (c *preferenceCache) MuteType(ctx context.Context, userID uuid.UUID, t entity.NotificationType) error {
	if err := c.next.MuteType(ctx, userID, t); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *preferenceCache) ListUserIDsByFrequency(ctx context.Context, freq entity.DigestFrequency) ([]uuid.UUID, error) {
	return c.next.ListUserIDsByFrequency(ctx, freq)
}

func (c *preferenceCache) store(ctx context.Context, key string, prefs *entity.NotificationPreferences) {
	value := missingMarker
	if prefs != nil {
		b, err := json.Marshal(fromEntity(*prefs))
		if err != nil {
			return
		}
		value = string(b)
	}
	if err := c.client.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("preference cache write failed",
			slog.String("key", key),
			slog.Any("error", err))
	}
}

func (c *preferenceCache) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.client.Del(ctx, c.client.PreferencesKey(userID.String())); err != nil {
		c.logger.Warn("preference cache invalidation failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
	}
}

func fromEntity(p entity.NotificationPreferences) cachedPreferences {
	return cachedPreferences{
		UserID:          p.UserID,
		InAppEnabled:    p.InAppEnabled,
		EmailEnabled:    p.EmailEnabled,
		PushEnabled:     p.PushEnabled,
		DigestFrequency: p.DigestFrequency,
		MutedTypes:      p.MutedTypes,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (cp cachedPreferences) toEntity() entity.NotificationPreferences {
	return entity.NotificationPreferences{
		UserID:          cp.UserID,
		InAppEnabled:    cp.InAppEnabled,
		EmailEnabled:    cp.EmailEnabled,
		PushEnabled:     cp.PushEnabled,
		DigestFrequency: cp.DigestFrequency,
		MutedTypes:      cp.MutedTypes,
		UpdatedAt:       cp.UpdatedAt,
	}
}
