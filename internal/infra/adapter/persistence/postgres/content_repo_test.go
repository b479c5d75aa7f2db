package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/infra/adapter/persistence/postgres"
)

func contentRows(items ...entity.ContentSummary) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "title", "url", "summary", "published_at"})
	for _, c := range items {
		rows.AddRow(c.ID, c.Title, c.URL, c.Summary, c.PublishedAt)
	}
	return rows
}

func TestContentRepo_RecentArticles(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	since := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	want := []entity.ContentSummary{
		{ID: 2, Title: "newer", URL: "https://example.com/a/2", PublishedAt: since.Add(2 * time.Hour)},
		{ID: 1, Title: "older", URL: "https://example.com/a/1", Summary: "s", PublishedAt: since.Add(time.Hour)},
	}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM articles`)).
		WithArgs(since, 5).
		WillReturnRows(contentRows(want...))

	repo := postgres.NewContentRepo(db)
	got, err := repo.RecentArticles(context.Background(), since, 5)
	if err != nil {
		t.Fatalf("RecentArticles err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestContentRepo_RecentNews(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	since := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM news`)).
		WithArgs(since, 5).
		WillReturnRows(contentRows())

	repo := postgres.NewContentRepo(db)
	got, err := repo.RecentNews(context.Background(), since, 5)
	if err != nil {
		t.Fatalf("RecentNews err=%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want no news, got %d", len(got))
	}
}

func TestContentRepo_RecentArticles_NullColumns(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	since := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	published := since.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM articles`)).
		WithArgs(since, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "url", "summary", "published_at"}).
			AddRow(1, "no url", nil, nil, published).
			AddRow(2, "with url", "https://example.com/a/2", nil, published))

	repo := postgres.NewContentRepo(db)
	got, err := repo.RecentArticles(context.Background(), since, 5)
	if err != nil {
		t.Fatalf("RecentArticles err=%v", err)
	}
	want := []entity.ContentSummary{
		{ID: 1, Title: "no url", PublishedAt: published},
		{ID: 2, Title: "with url", URL: "https://example.com/a/2", PublishedAt: published},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
