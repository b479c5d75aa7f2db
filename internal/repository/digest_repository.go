package repository

import (
	"context"
	"time"

	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
)

type DigestRepository interface {
	// CreateIfAbsent inserts d unless a digest already exists for
	// (user, type, scheduled_for). It reports whether d was inserted.
	CreateIfAbsent(ctx context.Context, d *entity.NotificationDigest) (bool, error)
	// FindByCycle returns (nil, nil) if no digest exists for the cycle.
	FindByCycle(ctx context.Context, userID uuid.UUID, t entity.DigestType, scheduledFor time.Time) (*entity.NotificationDigest, error)
	// Claim reserves an unsent digest for one sender until until. It reports
	// false while another claim is live or the digest was already sent.
	Claim(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
