package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/repository"

	"github.com/google/uuid"
)

type DigestRepo struct{ db DBTX }

func NewDigestRepo(db DBTX) repository.DigestRepository {
	return &DigestRepo{db: db}
}

func (repo *DigestRepo) CreateIfAbsent(ctx context.Context, d *entity.NotificationDigest) (bool, error) {
	if err := d.Content.Validate(); err != nil {
		return false, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	content, err := json.Marshal(d.Content)
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: marshal content: %w", err)
	}

	const query = `
INSERT INTO notification_digests
  (id, user_id, digest_type, content, total_count, scheduled_for, sent_at, status, failure_reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (user_id, digest_type, scheduled_for) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query,
		d.ID, d.UserID, string(d.Type), content, d.Content.TotalCount,
		d.ScheduledFor, d.SentAt, string(d.Status), nullString(d.FailureReason), d.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	return n == 1, nil
}

func (repo *DigestRepo) FindByCycle(ctx context.Context, userID uuid.UUID, t entity.DigestType, scheduledFor time.Time) (*entity.NotificationDigest, error) {
	const query = `
SELECT id, user_id, digest_type, content, scheduled_for, sent_at, status, failure_reason, created_at
FROM notification_digests
WHERE user_id = $1 AND digest_type = $2 AND scheduled_for = $3
LIMIT 1`
	var (
		d          entity.NotificationDigest
		dtype      string
		status     string
		content    []byte
		failReason sql.NullString
	)
	err := repo.db.QueryRowContext(ctx, query, userID, string(t), scheduledFor).Scan(
		&d.ID, &d.UserID, &dtype, &content, &d.ScheduledFor,
		&d.SentAt, &status, &failReason, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByCycle: %w", err)
	}

	d.Type = entity.DigestType(dtype)
	d.Status = entity.DigestStatus(status)
	d.FailureReason = stringPtr(failReason)
	if err := json.Unmarshal(content, &d.Content); err != nil {
		return nil, fmt.Errorf("FindByCycle: unmarshal content: %w", err)
	}
	return &d, nil
}

func (repo *DigestRepo) Claim(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	const query = `
UPDATE notification_digests
SET claimed_until = $3
WHERE id = $1
  AND status IN ('pending', 'failed')
  AND (claimed_until IS NULL OR claimed_until <= $2)`
	res, err := repo.db.ExecContext(ctx, query, id, now, until)
	if err != nil {
		return false, fmt.Errorf("Claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Claim: %w", err)
	}
	return n == 1, nil
}

func (repo *DigestRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	const query = `
UPDATE notification_digests
SET status = 'sent', sent_at = $2, failure_reason = NULL, claimed_until = NULL
WHERE id = $1 AND status <> 'sent'`
	return repo.transition(ctx, "MarkSent", query, id, sentAt)
}

func (repo *DigestRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const query = `
UPDATE notification_digests
SET status = 'failed', failure_reason = $2, claimed_until = NULL
WHERE id = $1 AND status <> 'sent'`
	return repo.transition(ctx, "MarkFailed", query, id, reason)
}

func (repo *DigestRepo) transition(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, entity.ErrInvalidTransition)
	}
	return nil
}
