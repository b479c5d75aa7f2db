package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/repository"
)

type ContentRepo struct{ db DBTX }

func NewContentRepo(db DBTX) repository.ContentRepository {
	return &ContentRepo{db: db}
}

func (repo *ContentRepo) RecentArticles(ctx context.Context, since time.Time, limit int) ([]entity.ContentSummary, error) {
	const query = `
SELECT id, title, url, summary, published_at
FROM articles
WHERE published_at >= $1
ORDER BY published_at DESC, id DESC
LIMIT $2`
	out, err := repo.recent(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentArticles: %w", err)
	}
	return out, nil
}

func (repo *ContentRepo) RecentNews(ctx context.Context, since time.Time, limit int) ([]entity.ContentSummary, error) {
	const query = `
SELECT id, title, url, summary, published_at
FROM news
WHERE published_at >= $1
ORDER BY published_at DESC, id DESC
LIMIT $2`
	out, err := repo.recent(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentNews: %w", err)
	}
	return out, nil
}

func (repo *ContentRepo) recent(ctx context.Context, query string, since time.Time, limit int) ([]entity.ContentSummary, error) {
	if limit <= 0 {
		return []entity.ContentSummary{}, nil
	}
	rows, err := repo.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]entity.ContentSummary, 0, limit)
	for rows.Next() {
		var (
			c            entity.ContentSummary
			url, summary sql.NullString
		)
		// url と summary はクローラ由来で NULL があり得る
		if err := rows.Scan(&c.ID, &c.Title, &url, &summary, &c.PublishedAt); err != nil {
			return nil, err
		}
		c.URL, c.Summary = url.String, summary.String
		out = append(out, c)
	}
	return out, rows.Err()
}
