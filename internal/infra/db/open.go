package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"catchup-notify/internal/pkg/config"
	"catchup-notify/internal/resilience/retry"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ConnectionConfig holds database connection pool configuration.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConnectionConfig returns the default connection pool configuration.
// Bulk delivery and digest sweeps run with bounded parallelism, so the pool
// only needs to cover that fan-out plus the API.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// ErrMissingDSN is returned by Open when no DSN is configured.
var ErrMissingDSN = errors.New("DATABASE_URL not set")

// Open creates and verifies a connection pool for dsn.
// The initial ping is retried with the database backoff policy.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cfg, warnings := ConnectionConfigFromEnv()
	for _, w := range warnings {
		slog.Warn("database pool configuration fallback", slog.String("warning", w))
	}
	applyConnectionConfig(db, cfg)

	slog.Info("database connection pool configured",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	err = retry.WithBackoff(ctx, retry.DBConfig(), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connection established successfully")
	return db, nil
}

func applyConnectionConfig(db *sql.DB, cfg ConnectionConfig) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// ConnectionConfigFromEnv reads pool settings from DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS,
// DB_CONN_MAX_LIFETIME and DB_CONN_MAX_IDLE_TIME. Invalid values fall back to defaults
// and are reported as warnings.
func ConnectionConfigFromEnv() (ConnectionConfig, []string) {
	def := DefaultConnectionConfig()
	poolSize := func(v int) error { return config.ValidateIntRange(v, 1, 1000) }

	maxOpen := config.Int("DB_MAX_OPEN_CONNS", def.MaxOpenConns, poolSize)
	maxIdle := config.Int("DB_MAX_IDLE_CONNS", def.MaxIdleConns, poolSize)
	lifetime := config.Duration("DB_CONN_MAX_LIFETIME", def.ConnMaxLifetime, config.ValidatePositiveDuration)
	idle := config.Duration("DB_CONN_MAX_IDLE_TIME", def.ConnMaxIdleTime, config.ValidatePositiveDuration)

	var warnings []string
	for _, w := range []string{maxOpen.Warning, maxIdle.Warning, lifetime.Warning, idle.Warning} {
		if w != "" {
			warnings = append(warnings, w)
		}
	}

	return ConnectionConfig{
		MaxOpenConns:    maxOpen.Value,
		MaxIdleConns:    maxIdle.Value,
		ConnMaxLifetime: lifetime.Value,
		ConnMaxIdleTime: idle.Value,
	}, warnings
}
