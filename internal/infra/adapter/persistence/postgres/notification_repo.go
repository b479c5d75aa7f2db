package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/repository"

	"github.com/google/uuid"
)

const notificationColumns = 10

type NotificationRepo struct{ db DBTX }

func NewNotificationRepo(db DBTX) repository.NotificationRepository {
	return &NotificationRepo{db: db}
}

func notificationArgs(n *entity.Notification) ([]interface{}, error) {
	title, err := json.Marshal(n.Title)
	if err != nil {
		return nil, fmt.Errorf("marshal title: %w", err)
	}
	message, err := json.Marshal(n.Message)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	payload, err := entity.EncodePayload(n.Payload)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		n.ID, n.UserID, string(n.Type), title, message, payload,
		string(n.Priority), n.Read, n.ReadAt, n.CreatedAt,
	}, nil
}

func (repo *NotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	args, err := notificationArgs(n)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	query := `
INSERT INTO notifications
  (id, user_id, type, title, message, payload, priority, read, read_at, created_at)
VALUES ` + placeholders(1, notificationColumns)
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *NotificationRepo) CreateBatch(ctx context.Context, ns []*entity.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(ns)*notificationColumns)
	for _, n := range ns {
		a, err := notificationArgs(n)
		if err != nil {
			return fmt.Errorf("CreateBatch: %w", err)
		}
		args = append(args, a...)
	}
	query := `
INSERT INTO notifications
  (id, user_id, type, title, message, payload, priority, read, read_at, created_at)
VALUES ` + placeholders(len(ns), notificationColumns)
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("CreateBatch: %w", err)
	}
	return nil
}

func (repo *NotificationRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	const query = `
SELECT id, user_id, type, title, message, payload, priority, read, read_at, created_at
FROM notifications
WHERE id = $1
LIMIT 1`
	var (
		n                       entity.Notification
		ntype, priority         string
		title, message, payload []byte
	)
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.UserID, &ntype, &title, &message, &payload,
		&priority, &n.Read, &n.ReadAt, &n.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	n.Type = entity.NotificationType(ntype)
	n.Priority = entity.Priority(priority)
	if err := json.Unmarshal(title, &n.Title); err != nil {
		return nil, fmt.Errorf("Get: unmarshal title: %w", err)
	}
	if err := json.Unmarshal(message, &n.Message); err != nil {
		return nil, fmt.Errorf("Get: unmarshal message: %w", err)
	}
	p, err := entity.DecodePayload(n.Type, payload)
	if err != nil {
		return nil, fmt.Errorf("Get: decode payload: %w", err)
	}
	n.Payload = p

	return &n, nil
}
