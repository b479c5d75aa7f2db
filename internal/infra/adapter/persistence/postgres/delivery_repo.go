package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/repository"

	"github.com/google/uuid"
)

const deliveryColumns = 8

type DeliveryRepo struct{ db DBTX }

func NewDeliveryRepo(db DBTX) repository.DeliveryRepository {
	return &DeliveryRepo{db: db}
}

func scanDelivery(rows *sql.Rows) (*entity.DeliveryStatus, error) {
	var (
		d       entity.DeliveryStatus
		channel string
		state   string
		reason  sql.NullString
	)
	if err := rows.Scan(
		&d.NotificationID, &channel, &state, &d.Attempts,
		&d.LastAttemptAt, &d.NextAttemptAt, &reason, &d.CreatedAt,
	); err != nil {
		return nil, err
	}
	d.Channel = entity.Channel(channel)
	d.State = entity.DeliveryState(state)
	d.FailureReason = stringPtr(reason)
	return &d, nil
}

func (repo *DeliveryRepo) CreateBatch(ctx context.Context, rows []*entity.DeliveryStatus) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*deliveryColumns)
	for _, d := range rows {
		args = append(args,
			d.NotificationID, string(d.Channel), string(d.State), d.Attempts,
			d.LastAttemptAt, d.NextAttemptAt, nullString(d.FailureReason), d.CreatedAt,
		)
	}
	query := `
INSERT INTO notification_deliveries
  (notification_id, channel, status, attempts, last_attempt_at, next_attempt_at, failure_reason, created_at)
VALUES ` + placeholders(len(rows), deliveryColumns) + `
ON CONFLICT (notification_id, channel) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("CreateBatch: %w", err)
	}
	return nil
}

// Update only touches rows that are still pending, so a late writer can never
// overwrite a terminal outcome.
func (repo *DeliveryRepo) Update(ctx context.Context, d *entity.DeliveryStatus) error {
	const query = `
UPDATE notification_deliveries
SET status = $3, attempts = $4, last_attempt_at = $5, next_attempt_at = $6, failure_reason = $7
WHERE notification_id = $1 AND channel = $2 AND status = 'pending'`
	res, err := repo.db.ExecContext(ctx, query,
		d.NotificationID, string(d.Channel), string(d.State), d.Attempts,
		d.LastAttemptAt, d.NextAttemptAt, nullString(d.FailureReason),
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Update: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *DeliveryRepo) ClaimDue(ctx context.Context, channel entity.Channel, now time.Time, lease time.Duration, limit int) ([]*entity.DeliveryStatus, error) {
	const query = `
UPDATE notification_deliveries d
SET next_attempt_at = $3
FROM (
  SELECT notification_id, channel
  FROM notification_deliveries
  WHERE channel = $1 AND status = 'pending' AND next_attempt_at <= $2
  ORDER BY next_attempt_at ASC, created_at ASC
  LIMIT $4
  FOR UPDATE SKIP LOCKED
) due
WHERE d.notification_id = due.notification_id AND d.channel = due.channel
RETURNING d.notification_id, d.channel, d.status, d.attempts,
          d.last_attempt_at, d.next_attempt_at, d.failure_reason, d.created_at`
	if limit <= 0 {
		return nil, nil
	}
	rows, err := repo.db.QueryContext(ctx, query, string(channel), now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("ClaimDue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	claimed := make([]*entity.DeliveryStatus, 0, limit)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimDue: %w", err)
		}
		claimed = append(claimed, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimDue: %w", err)
	}

	// RETURNING has no defined order.
	sort.SliceStable(claimed, func(i, j int) bool {
		return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
	})
	return claimed, nil
}

func (repo *DeliveryRepo) ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]*entity.DeliveryStatus, error) {
	const query = `
SELECT notification_id, channel, status, attempts, last_attempt_at, next_attempt_at, failure_reason, created_at
FROM notification_deliveries
WHERE notification_id = $1
ORDER BY channel ASC`
	rows, err := repo.db.QueryContext(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("ListByNotification: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*entity.DeliveryStatus, 0, 3)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByNotification: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
