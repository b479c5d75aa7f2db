package db

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrateUpPatterns = []string{
	"CREATE TABLE IF NOT EXISTS users",
	"CREATE TABLE IF NOT EXISTS push_devices",
	"CREATE TABLE IF NOT EXISTS articles",
	"CREATE TABLE IF NOT EXISTS news",
	"CREATE TABLE IF NOT EXISTS notifications (",
	"CREATE TABLE IF NOT EXISTS notification_deliveries",
	"CREATE TABLE IF NOT EXISTS notification_preferences",
	"CREATE TABLE IF NOT EXISTS notification_digests",
	"ADD COLUMN IF NOT EXISTS claimed_until",
	"idx_notifications_user_created",
	"idx_deliveries_pending_due",
	"idx_preferences_frequency",
	"idx_articles_published_at",
	"idx_news_published_at",
}

func TestMigrateUp_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, p := range migrateUpPatterns {
		mock.ExpectExec(regexp.QuoteMeta(p)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err = MigrateUp(db)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUp_StopsOnFirstError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(migrateUpPatterns[0])).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(migrateUpPatterns[1])).
		WillReturnError(sql.ErrConnDone)

	err = MigrateUp(db)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.Contains(t, err.Error(), "step 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUp_DigestUniqueness(t *testing.T) {
	// ダイジェストの重複作成は一意制約で防ぐ
	assert.Contains(t, notificationTables[3], "UNIQUE (user_id, digest_type, scheduled_for)")
	assert.Contains(t, notificationTables[3], "CHECK (total_count > 0)")
	assert.Contains(t, notificationTables[1], "PRIMARY KEY (notification_id, channel)")
	// 送信クレーム(ロックなしレプリカ間の二重送信防止)
	assert.Contains(t, notificationTables[3], "claimed_until  TIMESTAMPTZ")
}

func TestMigrateDown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, table := range []string{"notification_digests", "notification_preferences", "notification_deliveries", "notifications"} {
		mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS " + table)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	assert.NoError(t, MigrateDown(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
