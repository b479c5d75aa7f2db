package postgres_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/infra/adapter/persistence/postgres"
)

func TestUserRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	id := uuid.New()
	mock.ExpectQuery(`LEFT JOIN push_devices`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "locale", "tokens"}).
			AddRow(id.String(), "reader@example.com", "Reader", "ja", "{tok-1,tok-2}"))

	repo := postgres.NewUserRepo(db)
	got, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	want := &entity.User{
		ID: id, Email: "reader@example.com", DisplayName: "Reader", Locale: "ja",
		DeviceTokens: []string{"tok-1", "tok-2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestUserRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := postgres.NewUserRepo(db)
	got, err := repo.Get(context.Background(), uuid.New())
	if err != nil || got != nil {
		t.Fatalf("want (nil, nil), got (%v, %v)", got, err)
	}
}
