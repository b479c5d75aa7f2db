package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type UserRepo struct{ db DBTX }

func NewUserRepo(db DBTX) repository.UserRepository {
	return &UserRepo{db: db}
}

func (repo *UserRepo) Get(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	const query = `
SELECT u.id, u.email, u.display_name, u.locale,
       COALESCE(array_agg(d.token ORDER BY d.created_at) FILTER (WHERE d.token IS NOT NULL), '{}')
FROM users u
LEFT JOIN push_devices d ON d.user_id = u.id
WHERE u.id = $1
GROUP BY u.id, u.email, u.display_name, u.locale`
	var (
		u      entity.User
		tokens []string
	)
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.Locale, pq.Array(&tokens),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	u.DeviceTokens = tokens
	return &u, nil
}
