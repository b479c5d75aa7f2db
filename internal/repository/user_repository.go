package repository

import (
	"context"

	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
)

// UserRepository is the read-only view of the user store.
type UserRepository interface {
	// Get returns (nil, nil) if the user does not exist.
	Get(ctx context.Context, id uuid.UUID) (*entity.User, error)
}
