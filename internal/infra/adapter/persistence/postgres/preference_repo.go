package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type PreferenceRepo struct {
	db  DBTX
	now func() time.Time
}

func NewPreferenceRepo(db DBTX) repository.PreferenceRepository {
	return &PreferenceRepo{db: db, now: time.Now}
}

func mutedStrings(types []entity.NotificationType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func (repo *PreferenceRepo) Get(ctx context.Context, userID uuid.UUID) (*entity.NotificationPreferences, error) {
	const query = `
SELECT user_id, in_app_enabled, email_enabled, push_enabled, digest_frequency, muted_types, updated_at
FROM notification_preferences
WHERE user_id = $1
LIMIT 1`
	var (
		p     entity.NotificationPreferences
		freq  string
		muted []string
	)
	err := repo.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.InAppEnabled, &p.EmailEnabled, &p.PushEnabled,
		&freq, pq.Array(&muted), &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	p.DigestFrequency = entity.DigestFrequency(freq)
	p.MutedTypes = make([]entity.NotificationType, 0, len(muted))
	for _, m := range muted {
		p.MutedTypes = append(p.MutedTypes, entity.NotificationType(m))
	}
	return &p, nil
}

func (repo *PreferenceRepo) Upsert(ctx context.Context, p *entity.NotificationPreferences) error {
	const query = `
INSERT INTO notification_preferences
  (user_id, in_app_enabled, email_enabled, push_enabled, digest_frequency, muted_types, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id) DO UPDATE SET
  in_app_enabled   = EXCLUDED.in_app_enabled,
  email_enabled    = EXCLUDED.email_enabled,
  push_enabled     = EXCLUDED.push_enabled,
  digest_frequency = EXCLUDED.digest_frequency,
  muted_types      = EXCLUDED.muted_types,
  updated_at       = EXCLUDED.updated_at`
	now := repo.now()
	_, err := repo.db.ExecContext(ctx, query,
		p.UserID, p.InAppEnabled, p.EmailEnabled, p.PushEnabled,
		string(p.DigestFrequency), pq.Array(mutedStrings(p.MutedTypes)), now,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

func (repo *PreferenceRepo) MuteType(ctx context.Context, userID uuid.UUID, t entity.NotificationType) error {
	const query = `
INSERT INTO notification_preferences
  (user_id, in_app_enabled, email_enabled, push_enabled, digest_frequency, muted_types, updated_at)
VALUES ($1, $2, $3, $4, $5, ARRAY[$6::text], $7)
ON CONFLICT (user_id) DO UPDATE SET
  muted_types = CASE
    WHEN $6::text = ANY(notification_preferences.muted_types) THEN notification_preferences.muted_types
    ELSE array_append(notification_preferences.muted_types, $6::text)
  END,
  updated_at = EXCLUDED.updated_at`
	d := entity.DefaultPreferences(userID)
	_, err := repo.db.ExecContext(ctx, query,
		userID, d.InAppEnabled, d.EmailEnabled, d.PushEnabled,
		string(d.DigestFrequency), string(t), repo.now(),
	)
	if err != nil {
		return fmt.Errorf("MuteType: %w", err)
	}
	return nil
}

func (repo *PreferenceRepo) ListUserIDsByFrequency(ctx context.Context, freq entity.DigestFrequency) ([]uuid.UUID, error) {
	const query = `
SELECT user_id
FROM notification_preferences
WHERE digest_frequency = $1
ORDER BY user_id ASC`
	rows, err := repo.db.QueryContext(ctx, query, string(freq))
	if err != nil {
		return nil, fmt.Errorf("ListUserIDsByFrequency: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]uuid.UUID, 0, 64)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListUserIDsByFrequency: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
