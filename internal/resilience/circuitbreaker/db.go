package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// DBCircuitBreaker guards the notification store. Once the database keeps
// failing, delivery requests fail fast instead of queueing on a dead pool.
// It satisfies the repositories' DBTX interface.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db *sql.DB
}

// DBConfig trips after five consecutive failures and probes again after 30s.
// Caller cancellations and missing rows are not database failures.
func DBConfig() Config {
	return Config{
		Name:             "database",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
		IsSuccessful:     isHealthyDBResult,
	}
}

func isHealthyDBResult(err error) bool {
	return err == nil ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled)
}

// NewDBCircuitBreaker wraps db with DBConfig. An optional cfg overrides it.
func NewDBCircuitBreaker(db *sql.DB, cfg ...Config) *DBCircuitBreaker {
	c := DBConfig()
	if len(cfg) > 0 {
		c = cfg[0]
	}
	return &DBCircuitBreaker{cb: New(c), db: db}
}

func (d *DBCircuitBreaker) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := d.cb.Execute(func() (interface{}, error) {
		return d.db.QueryContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return rows.(*sql.Rows), nil
}

func (d *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		return d.db.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return res.(sql.Result), nil
}

// QueryRowContext is not guarded: *sql.Row defers its error to Scan.
// Single-row reads (user, preferences) still trip nothing while the breaker is open.
func (d *DBCircuitBreaker) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

func (d *DBCircuitBreaker) State() gobreaker.State { return d.cb.State() }

func (d *DBCircuitBreaker) IsOpen() bool { return d.cb.IsOpen() }

// OpenUntil reports when an open breaker may half-open.
func (d *DBCircuitBreaker) OpenUntil() *time.Time { return d.cb.OpenUntil() }
