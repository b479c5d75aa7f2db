package repository

import (
	"context"
	"time"

	"catchup-notify/internal/domain/entity"
)

// ContentRepository is the read-only view of the content catalog used by digests.
type ContentRepository interface {
	// RecentArticles returns published articles with published_at >= since, newest first.
	RecentArticles(ctx context.Context, since time.Time, limit int) ([]entity.ContentSummary, error)
	// RecentNews returns published news items with published_at >= since, newest first.
	RecentNews(ctx context.Context, since time.Time, limit int) ([]entity.ContentSummary, error)
}
