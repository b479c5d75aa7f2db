package db

import (
	"database/sql"
	"fmt"
)

// Collaborator-owned tables. The user store and the content catalog are managed by
// other services in production; they are created here so a fresh database can run
// the engine end to end.
var collaboratorTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id           UUID PRIMARY KEY,
    email        TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    locale       TEXT NOT NULL DEFAULT 'en',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS push_devices (
    user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, token)
)`,
	`CREATE TABLE IF NOT EXISTS articles (
    id           SERIAL PRIMARY KEY,
    title        TEXT NOT NULL,
    url          TEXT UNIQUE,
    summary      TEXT,
    published_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS news (
    id           SERIAL PRIMARY KEY,
    title        TEXT NOT NULL,
    url          TEXT UNIQUE,
    summary      TEXT,
    published_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ DEFAULT now()
)`,
}

var notificationTables = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
    id         UUID PRIMARY KEY,
    user_id    UUID NOT NULL,
    type       TEXT NOT NULL,
    title      JSONB NOT NULL,
    message    JSONB NOT NULL,
    payload    JSONB NOT NULL DEFAULT '{}',
    priority   TEXT NOT NULL DEFAULT 'normal',
    read       BOOLEAN NOT NULL DEFAULT FALSE,
    read_at    TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS notification_deliveries (
    notification_id UUID NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
    channel         TEXT NOT NULL CHECK (channel IN ('in_app', 'email', 'push')),
    status          TEXT NOT NULL CHECK (status IN ('pending', 'sent', 'failed', 'skipped')),
    attempts        INTEGER NOT NULL DEFAULT 0,
    last_attempt_at TIMESTAMPTZ,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    failure_reason  TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (notification_id, channel)
)`,
	`CREATE TABLE IF NOT EXISTS notification_preferences (
    user_id          UUID PRIMARY KEY,
    in_app_enabled   BOOLEAN NOT NULL DEFAULT TRUE,
    email_enabled    BOOLEAN NOT NULL DEFAULT TRUE,
    push_enabled     BOOLEAN NOT NULL DEFAULT FALSE,
    digest_frequency TEXT NOT NULL DEFAULT 'immediate',
    muted_types      TEXT[] NOT NULL DEFAULT '{}',
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS notification_digests (
    id             UUID PRIMARY KEY,
    user_id        UUID NOT NULL,
    digest_type    TEXT NOT NULL CHECK (digest_type IN ('daily', 'weekly')),
    content        JSONB NOT NULL,
    total_count    INTEGER NOT NULL CHECK (total_count > 0),
    scheduled_for  TIMESTAMPTZ NOT NULL,
    sent_at        TIMESTAMPTZ,
    status         TEXT NOT NULL CHECK (status IN ('pending', 'sent', 'failed')),
    failure_reason TEXT,
    claimed_until  TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, digest_type, scheduled_for)
)`,
	// 送信クレーム列追加前に作られた DB 用
	`ALTER TABLE notification_digests ADD COLUMN IF NOT EXISTS claimed_until TIMESTAMPTZ`,
}

var notificationIndexes = []string{
	// 未読一覧の取得用
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC)`,
	// pending スイープ用の部分インデックス(pending 以外はスキャン対象外)
	`CREATE INDEX IF NOT EXISTS idx_deliveries_pending_due ON notification_deliveries(channel, next_attempt_at) WHERE status = 'pending'`,
	// ダイジェスト対象ユーザー抽出用
	`CREATE INDEX IF NOT EXISTS idx_preferences_frequency ON notification_preferences(digest_frequency)`,
	// ダイジェスト本文の新着順取得用
	`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_news_published_at ON news(published_at DESC)`,
}

// MigrateUp creates the schema. Every statement is idempotent.
func MigrateUp(db *sql.DB) error {
	steps := make([]string, 0, len(collaboratorTables)+len(notificationTables)+len(notificationIndexes))
	steps = append(steps, collaboratorTables...)
	steps = append(steps, notificationTables...)
	steps = append(steps, notificationIndexes...)

	for i, stmt := range steps {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate up step %d: %w", i+1, err)
		}
	}
	return nil
}

// MigrateDown drops the tables owned by the notification engine.
// Collaborator tables (users, push_devices, articles, news) are left untouched.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS notification_digests`,
		`DROP TABLE IF EXISTS notification_preferences`,
		`DROP TABLE IF EXISTS notification_deliveries`,
		`DROP TABLE IF EXISTS notifications`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}
	return nil
}
