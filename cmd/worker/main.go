package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catchup-notify/internal/app"
	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/infra/cache"
	"catchup-notify/internal/infra/db"
	workerPkg "catchup-notify/internal/infra/worker"
	"catchup-notify/internal/observability/logging"
	"catchup-notify/internal/observability/metrics"
	"catchup-notify/internal/observability/tracing"
	pkgconfig "catchup-notify/internal/pkg/config"
	"catchup-notify/internal/usecase/notify"

	"github.com/prometheus/client_golang/prometheus"
)

func waitForMigrations(logger *slog.Logger, db *sql.DB) {
	const probe = "SELECT 1 FROM notification_deliveries LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := db.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

func main() {
	logger := initLogger()
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}

	shutdownTracing := tracing.InitProvider("catchup-notify-worker", version)
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database := initDatabase(ctx, logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	redis := app.ConnectCache(ctx, os.Getenv("REDIS_URL"), logger)
	if redis != nil {
		defer func() { _ = redis.Close() }()
	}

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics(prometheus.DefaultRegisterer)
	workerConfig := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.String("pending_sweep_schedule", workerConfig.PendingSweepSchedule),
		slog.String("daily_digest_schedule", workerConfig.DailyDigestSchedule),
		slog.String("weekly_digest_schedule", workerConfig.WeeklyDigestSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("sweep_timeout", workerConfig.SweepTimeout),
		slog.Int("pending_batch_size", workerConfig.PendingBatchSize),
		slog.Int("digest_concurrency", workerConfig.DigestConcurrency),
		slog.Int("health_port", workerConfig.HealthPort))

	if err := metrics.RegisterDBStats(prometheus.DefaultRegisterer, database, "notify"); err != nil {
		logger.Warn("db stats collector not registered", slog.Any("error", err))
	}
	if err := metrics.RegisterBuildInfo(prometheus.DefaultRegisterer, "worker", version); err != nil {
		logger.Warn("build info not registered", slog.Any("error", err))
	}

	loader := pkgconfig.NewLoader(logger, workerMetrics.ConfigMetrics)
	channelSettings := app.LoadChannelSettings(loader)
	loader.Finish()

	stores := app.NewStores(database, redis, channelSettings.PreferenceCacheTTL, logger)

	var publisher notify.RealtimePublisher
	if redis != nil {
		publisher = cache.NewPublisher(redis)
	}
	channels, err := app.NewChannels(channelSettings, stores.Preferences, publisher, logger)
	if err != nil {
		logger.Error("failed to configure channels", slog.Any("error", err))
		os.Exit(1)
	}

	processor := notify.NewProcessor(stores.DeliveryRepositories(), channels.Resolver, channels.Senders(), notify.ProcessorConfig{
		Lease: workerConfig.SweepTimeout,
	})

	locks, err := app.DigestLocks(redis, workerConfig.SweepTimeout)
	if err != nil {
		// ロックなしでもダイジェスト単位の送信クレームで二重送信は防げる
		logger.Warn("digest sweeps run without a distributed lock", slog.Any("error", err))
	}
	builder := notify.NewBuilder(stores.DigestRepositories(), channels.Resolver, channels.Email, notify.BuilderConfig{
		Location:    workerConfig.Location(),
		Concurrency: workerConfig.DigestConcurrency,
		Locks:       locks,
		SendLease:   workerConfig.SweepTimeout,
	})

	// Start health check server (probes + /metrics)
	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger, channels, prometheus.DefaultGatherer)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	scheduler := workerPkg.NewScheduler(workerConfig.Location(), workerConfig.SweepTimeout, workerMetrics, logger)
	for _, job := range buildJobs(workerConfig, processor, builder) {
		if err := scheduler.Add(job); err != nil {
			logger.Error("failed to add cron job", slog.String("job", job.Name), slog.Any("error", err))
			os.Exit(1)
		}
	}
	scheduler.Start()

	// Mark as ready after cron is set up
	healthServer.SetReady(true)
	logger.Info("worker started", slog.String("timezone", workerConfig.Timezone))

	<-ctx.Done()
	logger.Info("shutting down worker...")
	healthServer.SetReady(false)

	// 実行中のスイープは取り消され、リースの期限切れ後に次のスイープが拾い直す
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler did not stop cleanly", slog.Any("error", err))
	}
	logger.Info("worker stopped")
}

// initLogger initializes the process logger from LOG_LEVEL and LOG_FORMAT.
func initLogger() *slog.Logger {
	logger := logging.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and waits for the API to apply migrations.
func initDatabase(ctx context.Context, logger *slog.Logger) *sql.DB {
	database, err := db.Open(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	waitForMigrations(logger, database)
	return database
}

// pendingChannels are swept for retries. In-app sends never fail, so nothing
// is ever left pending for them.
var pendingChannels = []entity.Channel{entity.ChannelEmail, entity.ChannelPush}

// buildJobs returns the scheduled sweeps: one pending retry sweep per channel
// plus the daily and weekly digests.
func buildJobs(cfg *workerPkg.WorkerConfig, processor *notify.Processor, builder *notify.Builder) []workerPkg.Job {
	jobs := make([]workerPkg.Job, 0, len(pendingChannels)+2)
	for _, ch := range pendingChannels {
		jobs = append(jobs, workerPkg.Job{
			Name:     "pending_" + string(ch),
			Schedule: cfg.PendingSweepSchedule,
			Run: func(ctx context.Context) (int, error) {
				return processor.RunPendingRetrySweep(ctx, ch, cfg.PendingBatchSize)
			},
		})
	}

	jobs = append(jobs,
		workerPkg.Job{
			Name:     "daily_digest",
			Schedule: cfg.DailyDigestSchedule,
			Run: func(ctx context.Context) (int, error) {
				stats, err := builder.RunDailyDigestSweep(ctx)
				return stats.Sent, err
			},
		},
		workerPkg.Job{
			Name:     "weekly_digest",
			Schedule: cfg.WeeklyDigestSchedule,
			Run: func(ctx context.Context) (int, error) {
				stats, err := builder.RunWeeklyDigestSweep(ctx)
				return stats.Sent, err
			},
		},
	)
	return jobs
}
