package worker

import (
	"fmt"
	"log/slog"
	"time"

	"catchup-notify/internal/pkg/config"

	"go.uber.org/multierr"
)

// WorkerConfig holds the schedules and limits of the sweep worker.
// Every field has a default so the worker can start with an empty environment.
type WorkerConfig struct {
	// PendingSweepSchedule drives the retry sweep of every channel.
	// Default: every minute
	PendingSweepSchedule string

	// DailyDigestSchedule and WeeklyDigestSchedule drive the digest sweeps.
	// Defaults: 07:00 daily, 07:00 on Mondays
	DailyDigestSchedule  string
	WeeklyDigestSchedule string

	// Timezone is the IANA zone for the cron schedules and digest cycle boundaries.
	// Default: "UTC"
	Timezone string

	// SweepTimeout bounds one sweep run. Range: 10s-1h. Default: 5 minutes
	SweepTimeout time.Duration

	// PendingBatchSize is the claim limit per channel sweep. Range: 1-1000. Default: 100
	PendingBatchSize int

	// DigestConcurrency bounds users processed in parallel by a digest sweep. Range: 1-50. Default: 5
	DigestConcurrency int

	// HealthPort serves /health, /health/ready, /health/channels and /metrics.
	// Range: 1024-65535. Default: 9091
	HealthPort int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		PendingSweepSchedule: "* * * * *",
		DailyDigestSchedule:  "0 7 * * *",
		WeeklyDigestSchedule: "0 7 * * 1",
		Timezone:             "UTC",
		SweepTimeout:         5 * time.Minute,
		PendingBatchSize:     100,
		DigestConcurrency:    5,
		HealthPort:           9091,
	}
}

func batchSize(v int) error   { return config.ValidateIntRange(v, 1, 1000) }
func concurrency(v int) error { return config.ValidateIntRange(v, 1, 50) }
func port(v int) error        { return config.ValidateIntRange(v, 1024, 65535) }
func sweepTimeout(d time.Duration) error {
	return config.ValidateDuration(d, 10*time.Second, time.Hour)
}

// Validate reports every invalid field.
func (c *WorkerConfig) Validate() error {
	var err error
	for name, s := range map[string]string{
		"pending sweep schedule": c.PendingSweepSchedule,
		"daily digest schedule":  c.DailyDigestSchedule,
		"weekly digest schedule": c.WeeklyDigestSchedule,
	} {
		if e := config.ValidateCronSchedule(s); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", name, e))
		}
	}
	if e := config.ValidateTimezone(c.Timezone); e != nil {
		err = multierr.Append(err, fmt.Errorf("timezone: %w", e))
	}
	if e := sweepTimeout(c.SweepTimeout); e != nil {
		err = multierr.Append(err, fmt.Errorf("sweep timeout: %w", e))
	}
	if e := batchSize(c.PendingBatchSize); e != nil {
		err = multierr.Append(err, fmt.Errorf("pending batch size: %w", e))
	}
	if e := concurrency(c.DigestConcurrency); e != nil {
		err = multierr.Append(err, fmt.Errorf("digest concurrency: %w", e))
	}
	if e := port(c.HealthPort); e != nil {
		err = multierr.Append(err, fmt.Errorf("health port: %w", e))
	}
	return err
}

// Location returns the configured zone, or UTC when it cannot be loaded.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfigFromEnv reads the worker configuration. Invalid values fall back to
// their defaults with a warning and a metric; loading never fails.
//
// Environment variables:
//   - PENDING_SWEEP_SCHEDULE, DAILY_DIGEST_SCHEDULE, WEEKLY_DIGEST_SCHEDULE: cron expressions
//   - WORKER_TIMEZONE: IANA timezone name
//   - SWEEP_TIMEOUT: duration, e.g. "5m"
//   - PENDING_BATCH_SIZE, DIGEST_CONCURRENCY, WORKER_HEALTH_PORT: integers
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	def := DefaultConfig()
	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}
	l := config.NewLoader(logger, cm)

	cfg := WorkerConfig{
		PendingSweepSchedule: config.Take(l, "pending_sweep_schedule",
			config.String("PENDING_SWEEP_SCHEDULE", def.PendingSweepSchedule, config.ValidateCronSchedule)),
		DailyDigestSchedule: config.Take(l, "daily_digest_schedule",
			config.String("DAILY_DIGEST_SCHEDULE", def.DailyDigestSchedule, config.ValidateCronSchedule)),
		WeeklyDigestSchedule: config.Take(l, "weekly_digest_schedule",
			config.String("WEEKLY_DIGEST_SCHEDULE", def.WeeklyDigestSchedule, config.ValidateCronSchedule)),
		Timezone: config.Take(l, "timezone",
			config.String("WORKER_TIMEZONE", def.Timezone, config.ValidateTimezone)),
		SweepTimeout: config.Take(l, "sweep_timeout",
			config.Duration("SWEEP_TIMEOUT", def.SweepTimeout, sweepTimeout)),
		PendingBatchSize: config.Take(l, "pending_batch_size",
			config.Int("PENDING_BATCH_SIZE", def.PendingBatchSize, batchSize)),
		DigestConcurrency: config.Take(l, "digest_concurrency",
			config.Int("DIGEST_CONCURRENCY", def.DigestConcurrency, concurrency)),
		HealthPort: config.Take(l, "health_port",
			config.Int("WORKER_HEALTH_PORT", def.HealthPort, port)),
	}
	l.Finish()
	return &cfg
}
