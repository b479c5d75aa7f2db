// Package app assembles the delivery stack shared by cmd/api and cmd/worker:
// repositories, the preference resolver, channel senders and unsubscribe tokens.
//
// Settings come from the environment. Missing provider credentials disable the
// channel with a no-op provider; an invalid unsubscribe secret is fatal because
// every email carries a signed link.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"catchup-notify/internal/domain/entity"
	pgRepo "catchup-notify/internal/infra/adapter/persistence/postgres"
	"catchup-notify/internal/infra/cache"
	"catchup-notify/internal/infra/notifier"
	"catchup-notify/internal/pkg/config"
	"catchup-notify/internal/repository"
	"catchup-notify/internal/resilience/circuitbreaker"
	"catchup-notify/internal/usecase/notify"
	"catchup-notify/internal/usecase/unsubscribe"
)

// Stores holds the repositories, all backed by one breaker-guarded pool.
type Stores struct {
	Notifications repository.NotificationRepository
	Deliveries    repository.DeliveryRepository
	Users         repository.UserRepository
	Preferences   repository.PreferenceRepository
	Digests       repository.DigestRepository
	Content       repository.ContentRepository

	Breaker *circuitbreaker.DBCircuitBreaker
}

// NewStores builds the postgres repositories. When redis is non-nil preference
// reads go through the Redis read-through cache.
func NewStores(database *sql.DB, redis *cache.Client, preferenceTTL time.Duration, logger *slog.Logger) *Stores {
	guarded := circuitbreaker.NewDBCircuitBreaker(database)

	prefs := pgRepo.NewPreferenceRepo(guarded)
	if redis != nil {
		prefs = cache.NewPreferenceCache(prefs, redis, preferenceTTL, logger)
	}

	return &Stores{
		Notifications: pgRepo.NewNotificationRepo(guarded),
		Deliveries:    pgRepo.NewDeliveryRepo(guarded),
		Users:         pgRepo.NewUserRepo(guarded),
		Preferences:   prefs,
		Digests:       pgRepo.NewDigestRepo(guarded),
		Content:       pgRepo.NewContentRepo(guarded),
		Breaker:       guarded,
	}
}

// DeliveryRepositories returns the subset used by the orchestrator and processor.
func (s *Stores) DeliveryRepositories() notify.Repositories {
	return notify.Repositories{
		Notifications: s.Notifications,
		Deliveries:    s.Deliveries,
		Users:         s.Users,
	}
}

// DigestRepositories returns the subset used by the digest builder.
func (s *Stores) DigestRepositories() notify.DigestRepositories {
	return notify.DigestRepositories{
		Digests:     s.Digests,
		Content:     s.Content,
		Users:       s.Users,
		Preferences: s.Preferences,
	}
}

// Channels is the assembled sender stack.
type Channels struct {
	Resolver *notify.Resolver
	Email    *notify.EmailSender
	Push     *notify.PushSender
	InApp    *notify.InAppSender
	Tokens   *unsubscribe.TokenService
}

// Senders returns every channel sender in dispatch order.
func (c *Channels) Senders() []notify.Sender {
	return []notify.Sender{c.InApp, c.Email, c.Push}
}

// GetChannelHealth reports the breaker state of every sender.
func (c *Channels) GetChannelHealth() []notify.ChannelHealthStatus {
	return []notify.ChannelHealthStatus{c.InApp.Health(), c.Email.Health(), c.Push.Health()}
}

// ChannelSettings is the provider configuration read from the environment.
type ChannelSettings struct {
	Postmark notifier.PostmarkConfig
	Push     notifier.PushGatewayConfig

	SendTimeout time.Duration

	UnsubscribeSecret  string
	UnsubscribeBaseURL string
	UnsubscribeTTL     time.Duration

	PreferenceCacheTTL time.Duration
}

// LoadChannelSettings reads provider settings through l. Secrets and tokens are
// read as-is; tunables fall back to defaults when invalid.
func LoadChannelSettings(l *config.Loader) ChannelSettings {
	noCheck := func(string) error { return nil }
	rps := func(v int) error { return config.ValidateIntRange(v, 1, 1000) }
	optionalURL := func(raw string) error {
		if raw == "" {
			return nil
		}
		return config.ValidateHTTPURL(raw)
	}

	return ChannelSettings{
		Postmark: notifier.PostmarkConfig{
			ServerToken:   config.Take(l, "postmark_server_token", config.String("POSTMARK_SERVER_TOKEN", "", noCheck)),
			AccountToken:  config.Take(l, "postmark_account_token", config.String("POSTMARK_ACCOUNT_TOKEN", "", noCheck)),
			SenderEmail:   config.Take(l, "email_sender", config.String("EMAIL_SENDER", "", noCheck)),
			ReplyTo:       config.Take(l, "email_reply_to", config.String("EMAIL_REPLY_TO", "", noCheck)),
			MessageStream: config.Take(l, "postmark_message_stream", config.String("POSTMARK_MESSAGE_STREAM", "outbound", noCheck)),
			RequestsPerSecond: float64(config.Take(l, "postmark_rps",
				config.Int("POSTMARK_RPS", 10, rps))),
			Burst: config.Take(l, "postmark_burst", config.Int("POSTMARK_BURST", 20, rps)),
		},
		Push: notifier.PushGatewayConfig{
			URL:     config.Take(l, "push_gateway_url", config.String("PUSH_GATEWAY_URL", "", optionalURL)),
			APIKey:  config.Take(l, "push_gateway_api_key", config.String("PUSH_GATEWAY_API_KEY", "", noCheck)),
			Timeout: config.Take(l, "push_gateway_timeout", config.Duration("PUSH_GATEWAY_TIMEOUT", 10*time.Second, config.ValidatePositiveDuration)),
			RequestsPerSecond: float64(config.Take(l, "push_gateway_rps",
				config.Int("PUSH_GATEWAY_RPS", 50, rps))),
			Burst: config.Take(l, "push_gateway_burst", config.Int("PUSH_GATEWAY_BURST", 100, rps)),
		},
		SendTimeout: config.Take(l, "send_timeout",
			config.Duration("CHANNEL_SEND_TIMEOUT", 10*time.Second, func(d time.Duration) error {
				return config.ValidateDuration(d, time.Second, 2*time.Minute)
			})),
		UnsubscribeSecret: config.Take(l, "unsubscribe_secret", config.String("UNSUBSCRIBE_SECRET", "", noCheck)),
		UnsubscribeBaseURL: config.Take(l, "unsubscribe_base_url",
			config.String("UNSUBSCRIBE_BASE_URL", "http://localhost:8080/unsubscribe", config.ValidateHTTPURL)),
		UnsubscribeTTL: config.Take(l, "unsubscribe_token_ttl",
			config.Duration("UNSUBSCRIBE_TOKEN_TTL", unsubscribe.DefaultTTL, config.ValidatePositiveDuration)),
		PreferenceCacheTTL: config.Take(l, "preference_cache_ttl",
			config.Duration("PREFERENCE_CACHE_TTL", 5*time.Minute, config.ValidatePositiveDuration)),
	}
}

// NewChannels builds the resolver, unsubscribe token service and channel senders.
// publisher may be nil, in which case in-app delivery only persists the row.
func NewChannels(settings ChannelSettings, prefs repository.PreferenceRepository, publisher notify.RealtimePublisher, logger *slog.Logger) (*Channels, error) {
	tokens, err := unsubscribe.NewTokenService(unsubscribe.TokenConfig{
		Secret:  []byte(settings.UnsubscribeSecret),
		TTL:     settings.UnsubscribeTTL,
		BaseURL: settings.UnsubscribeBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("unsubscribe tokens: %w", err)
	}

	var email notifier.EmailProvider = notifier.NewNoOpProvider()
	emailEnabled := false
	if settings.Postmark.ServerToken != "" {
		p, err := notifier.NewPostmarkProvider(settings.Postmark)
		if err != nil {
			return nil, fmt.Errorf("email provider: %w", err)
		}
		email, emailEnabled = p, true
	} else {
		logger.Warn("email channel disabled", slog.String("reason", "POSTMARK_SERVER_TOKEN not set"))
	}

	var push notifier.PushProvider = notifier.NewNoOpProvider()
	pushEnabled := false
	if settings.Push.URL != "" {
		p, err := notifier.NewPushGateway(settings.Push)
		if err != nil {
			return nil, fmt.Errorf("push provider: %w", err)
		}
		push, pushEnabled = p, true
	} else {
		logger.Warn("push channel disabled", slog.String("reason", "PUSH_GATEWAY_URL not set"))
	}

	channels := &Channels{
		Resolver: notify.NewResolver(prefs),
		Email: notify.NewEmailSender(email, tokens, notify.EmailSenderConfig{
			Breaker: circuitbreaker.EmailProviderConfig(),
			Timeout: settings.SendTimeout,
			Enabled: emailEnabled,
		}),
		Push: notify.NewPushSender(push, notify.PushSenderConfig{
			Breaker: circuitbreaker.PushGatewayConfig(),
			Timeout: settings.SendTimeout,
			Enabled: pushEnabled,
		}),
		InApp:  notify.NewInAppSender(publisher, settings.SendTimeout),
		Tokens: tokens,
	}

	enabled := 1 // in-app
	for _, on := range []bool{emailEnabled, pushEnabled} {
		if on {
			enabled++
		}
	}
	notify.SetChannelsEnabled(float64(enabled))

	logger.Info("channel senders configured",
		slog.Bool("email", emailEnabled),
		slog.Bool("push", pushEnabled),
		slog.Bool("realtime", publisher != nil))
	return channels, nil
}

// ConnectCache connects to REDIS_URL. An empty URL or a failed connection
// returns nil: Redis accelerates delivery but is never required for it.
func ConnectCache(ctx context.Context, url string, logger *slog.Logger) *cache.Client {
	if url == "" {
		logger.Info("redis not configured, running without cache and realtime publish")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := cache.Connect(ctx, url)
	if err != nil {
		logger.Warn("redis unavailable, running without cache and realtime publish",
			slog.Any("error", err))
		return nil
	}
	logger.Info("redis connection established")
	return client
}

// ErrNoDigestLocks is returned when digest sweeps would run without a Redis lock.
var ErrNoDigestLocks = errors.New("redis is required for digest sweep locks")

// DigestLocks builds one Redis sweep lock per digest type.
func DigestLocks(redis *cache.Client, ttl time.Duration) (map[entity.DigestType]notify.Locker, error) {
	if redis == nil {
		return nil, ErrNoDigestLocks
	}
	locks := make(map[entity.DigestType]notify.Locker, 2)
	for _, t := range []entity.DigestType{entity.DigestDaily, entity.DigestWeekly} {
		lock, err := cache.NewSweepLock(redis, "digest:"+string(t), ttl)
		if err != nil {
			return nil, fmt.Errorf("digest lock %s: %w", t, err)
		}
		locks[t] = lock
	}
	return locks, nil
}
