package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catchup-notify/internal/app"
	"catchup-notify/internal/config"
	"catchup-notify/internal/infra/cache"
	"catchup-notify/internal/infra/db"
	"catchup-notify/internal/observability/logging"
	"catchup-notify/internal/observability/metrics"
	"catchup-notify/internal/observability/tracing"
	pkgconfig "catchup-notify/internal/pkg/config"
	"catchup-notify/internal/usecase/notify"
	"catchup-notify/internal/usecase/unsubscribe"

	hhttp "catchup-notify/internal/handler/http"
	hauth "catchup-notify/internal/handler/http/auth"
	hnotification "catchup-notify/internal/handler/http/notification"
	"catchup-notify/internal/handler/http/requestid"
	hunsubscribe "catchup-notify/internal/handler/http/unsubscribe"

	"github.com/prometheus/client_golang/prometheus"
)

// Catchup Notify API: 通知の受付（単発・一括）とワンクリック配信停止を提供する。
// /notifications 系は producer ロールの JWT を Authorization: Bearer で要求する。
func main() {
	logger := initLogger()
	version := getVersion()

	shutdownTracing := tracing.InitProvider("catchup-notify-api", version)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to shut down tracer provider", slog.Any("error", err))
		}
	}()

	ctx := context.Background()
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

	components := setupServer(logger, database, redis, version)
	runServer(logger, components, version)
}

// initLogger initializes the process logger from LOG_LEVEL and LOG_FORMAT.
func initLogger() *slog.Logger {
	logger := logging.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(ctx context.Context, logger *slog.Logger) *sql.DB {
	database, err := db.Open(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}

// loadCatalog reads NOTIFICATION_CATALOG_PATH, falling back to the embedded catalog.
func loadCatalog(logger *slog.Logger) *config.NotificationCatalog {
	path := os.Getenv("NOTIFICATION_CATALOG_PATH")
	if path == "" {
		return config.DefaultNotificationCatalog()
	}
	catalog, err := config.LoadNotificationCatalog(path)
	if err != nil {
		logger.Error("failed to load notification catalog", slog.String("path", path), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("notification catalog loaded",
		slog.String("path", path),
		slog.Int("version", catalog.Version()))
	return catalog
}

// apiSettings are the API-only tunables.
type apiSettings struct {
	Addr               string
	MaxBodyBytes       int
	MaxConcurrent      int
	UnsubscribeRPS     int
	UnsubscribeBurst   int
	RateLimitIdle      time.Duration
	RateLimitCleanup   time.Duration
	ShutdownTimeout    time.Duration
	ProducerJWTSecret  string
	ProducerAuthEnable bool
}

func loadAPISettings(l *pkgconfig.Loader) apiSettings {
	noCheck := func(string) error { return nil }
	between := func(min, max int) func(int) error {
		return func(v int) error { return pkgconfig.ValidateIntRange(v, min, max) }
	}

	return apiSettings{
		Addr:          pkgconfig.Take(l, "addr", pkgconfig.String("API_ADDR", ":8080", noCheck)),
		MaxBodyBytes:  pkgconfig.Take(l, "max_body_bytes", pkgconfig.Int("API_MAX_BODY_BYTES", 4<<20, between(1<<10, 64<<20))),
		MaxConcurrent: pkgconfig.Take(l, "bulk_concurrency", pkgconfig.Int("BULK_MAX_CONCURRENT_RECIPIENTS", 16, between(1, 100))),
		UnsubscribeRPS: pkgconfig.Take(l, "unsubscribe_rps",
			pkgconfig.Int("UNSUBSCRIBE_RATE_LIMIT_RPS", 5, between(1, 1000))),
		UnsubscribeBurst: pkgconfig.Take(l, "unsubscribe_burst",
			pkgconfig.Int("UNSUBSCRIBE_RATE_LIMIT_BURST", 10, between(1, 1000))),
		RateLimitIdle: pkgconfig.Take(l, "rate_limit_idle",
			pkgconfig.Duration("RATE_LIMIT_IDLE_TIMEOUT", 10*time.Minute, pkgconfig.ValidatePositiveDuration)),
		RateLimitCleanup: pkgconfig.Take(l, "rate_limit_cleanup",
			pkgconfig.Duration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute, pkgconfig.ValidatePositiveDuration)),
		ShutdownTimeout: pkgconfig.Take(l, "shutdown_timeout",
			pkgconfig.Duration("SHUTDOWN_TIMEOUT", 15*time.Second, pkgconfig.ValidatePositiveDuration)),
		ProducerJWTSecret:  pkgconfig.Take(l, "producer_jwt_secret", pkgconfig.String("PRODUCER_JWT_SECRET", "", noCheck)),
		ProducerAuthEnable: pkgconfig.Take(l, "producer_auth_enabled", pkgconfig.Bool("PRODUCER_AUTH_ENABLED", true)),
	}
}

// ServerComponents holds components needed for server operation and cleanup.
type ServerComponents struct {
	Handler  http.Handler
	Limiter  *hhttp.IPRateLimiter
	Settings apiSettings
}

// setupServer configures and returns the HTTP handler with all routes and middleware.
func setupServer(logger *slog.Logger, database *sql.DB, redis *cache.Client, version string) *ServerComponents {
	configMetrics := pkgconfig.NewConfigMetrics("api", prometheus.DefaultRegisterer)
	loader := pkgconfig.NewLoader(logger, configMetrics)
	settings := loadAPISettings(loader)
	channelSettings := app.LoadChannelSettings(loader)
	if warnings := loader.Finish(); len(warnings) > 0 {
		logger.Warn("api configuration loaded with fallbacks", slog.Int("count", len(warnings)))
	}

	if err := metrics.RegisterDBStats(prometheus.DefaultRegisterer, database, "notify"); err != nil {
		logger.Warn("db stats collector not registered", slog.Any("error", err))
	}
	if err := metrics.RegisterBuildInfo(prometheus.DefaultRegisterer, "api", version); err != nil {
		logger.Warn("build info not registered", slog.Any("error", err))
	}

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

	notifySvc := notify.NewService(stores.DeliveryRepositories(), channels.Resolver, channels.Senders(),
		loadCatalog(logger), notify.ServiceConfig{
			MaxConcurrentRecipients: settings.MaxConcurrent,
			InlineLease:             channelSettings.SendTimeout + time.Minute,
		})
	unsubscribeSvc := unsubscribe.NewService(channels.Tokens, stores.Preferences)

	limiter := hhttp.NewIPRateLimiter(float64(settings.UnsubscribeRPS), settings.UnsubscribeBurst, settings.RateLimitIdle)

	mux := http.NewServeMux()
	hnotification.Register(mux, notifySvc)
	hunsubscribe.Register(mux, unsubscribeSvc, limiter.Middleware)

	health := &hhttp.HealthHandler{DB: database, Channels: notifySvc, Version: version}
	if redis != nil {
		health.Cache = redis
	}
	mux.Handle("GET /health", health)
	mux.Handle("GET /ready", &hhttp.ReadyHandler{DB: database})
	mux.HandleFunc("GET /live", hhttp.LiveHandler)
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	handler := applyMiddleware(logger, mux, settings)

	return &ServerComponents{
		Handler:  handler,
		Limiter:  limiter,
		Settings: settings,
	}
}

// applyMiddleware wraps the mux. The first middleware listed is the outermost:
//  1. Request ID (so every log line and error body carries it)
//  2. Tracing (server span, X-Trace-Id)
//  3. Request-scoped logger
//  4. Logging (one line per request)
//  5. Recovery (catch panics)
//  6. Metrics
//  7. Body size limit
//  8. Producer authentication (public endpoints pass through)
func applyMiddleware(logger *slog.Logger, handler http.Handler, settings apiSettings) http.Handler {
	authMW := func(next http.Handler) http.Handler { return next }
	if settings.ProducerAuthEnable {
		mw, err := hauth.Authz([]byte(settings.ProducerJWTSecret))
		if err != nil {
			logger.Error("PRODUCER_JWT_SECRET must be at least 32 characters (256 bits)", slog.Any("error", err))
			os.Exit(1)
		}
		authMW = mw
	} else {
		logger.Warn("producer authentication is disabled")
	}

	return hhttp.Chain(handler,
		requestid.Middleware,
		tracing.Middleware,
		logging.Middleware(logger),
		hhttp.Logging(logger),
		hhttp.Recover(logger),
		hhttp.MetricsMiddleware,
		hhttp.LimitRequestBody(int64(settings.MaxBodyBytes)),
		authMW,
	)
}

// runServer starts the HTTP server and handles graceful shutdown.
func runServer(logger *slog.Logger, components *ServerComponents, version string) {
	// Create a context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hhttp.StartRateLimitCleanup(ctx, components.Limiter, components.Settings.RateLimitCleanup, "unsubscribe")

	srv := &http.Server{
		Addr:              components.Settings.Addr,
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	// 進行中の一括配信は Shutdown が待つ。先に cancel すると配信が中断されるため順序に注意
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), components.Settings.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}

	cancel()
	logger.Info("server stopped")
}
