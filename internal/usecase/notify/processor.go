package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/observability/tracing"
	"catchup-notify/internal/resilience/retry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultClaimLease   = 5 * time.Minute
	reasonRecipientGone = "recipient not found"
)

// ProcessorConfig tunes the pending-queue processor.
type ProcessorConfig struct {
	// Retry must match the orchestrator's policy
	Retry retry.Config
	// Lease is how long a claimed row is hidden from other sweeps
	Lease time.Duration
	Now   func() time.Time
}

// Processor retries deliveries left pending by earlier attempts.
type Processor struct {
	repos    Repositories
	resolver *Resolver
	senders  map[entity.Channel]Sender
	retry    retry.Config
	lease    time.Duration
	now      func() time.Time
}

func NewProcessor(repos Repositories, resolver *Resolver, senders []Sender, cfg ProcessorConfig) *Processor {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.PendingDeliveryConfig()
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultClaimLease
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	byChannel := make(map[entity.Channel]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Processor{
		repos:    repos,
		resolver: resolver,
		senders:  byChannel,
		retry:    cfg.Retry,
		lease:    cfg.Lease,
		now:      cfg.Now,
	}
}

// sweepCache memoizes lookups within one sweep.
type sweepCache struct {
	users map[uuid.UUID]*entity.User
	prefs map[uuid.UUID]entity.NotificationPreferences
}

// ProcessPending claims up to limit due pending rows for channel, oldest first,
// and retries each. Rows that are not pending are never returned by the claim,
// so an already-sent row cannot be sent twice. It returns how many rows had an
// outcome recorded.
func (p *Processor) ProcessPending(ctx context.Context, channel entity.Channel, limit int) (_ int, err error) {
	ctx, span := tracing.StartSpan(ctx, "notify.ProcessPending",
		attribute.String("channel", string(channel)),
		attribute.Int("limit", limit))
	defer func() { tracing.EndSpan(span, err) }()

	if !channel.IsValid() {
		return 0, fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, channel)
	}
	if limit <= 0 {
		return 0, nil
	}

	rows, err := p.repos.Deliveries.ClaimDue(ctx, channel, p.now(), p.lease, limit)
	if err != nil {
		return 0, fmt.Errorf("claim pending deliveries: %w", err)
	}

	cache := sweepCache{
		users: make(map[uuid.UUID]*entity.User),
		prefs: make(map[uuid.UUID]entity.NotificationPreferences),
	}
	processed := 0
	for _, row := range rows {
		if p.processRow(ctx, row, &cache) {
			processed++
		}
	}

	span.SetAttributes(attribute.Int("claimed", len(rows)), attribute.Int("processed", processed))
	return processed, nil
}

// RunPendingRetrySweep is the scheduler entry point for ProcessPending.
func (p *Processor) RunPendingRetrySweep(ctx context.Context, channel entity.Channel, limit int) (int, error) {
	start := time.Now()
	n, err := p.ProcessPending(ctx, channel, limit)
	if err != nil {
		slog.Error("pending retry sweep failed",
			slog.String("channel", string(channel)),
			slog.Any("error", err))
		return n, err
	}
	slog.Info("pending retry sweep finished",
		slog.String("channel", string(channel)),
		slog.Int("processed", n),
		slog.Duration("duration", time.Since(start)))
	return n, nil
}

// processRow records one outcome for row. Lookup errors leave the row pending;
// the lease expires and a later sweep picks it up again.
func (p *Processor) processRow(ctx context.Context, row *entity.DeliveryStatus, cache *sweepCache) bool {
	logger := slog.With(
		slog.String("notification_id", row.NotificationID.String()),
		slog.String("channel", string(row.Channel)))

	n, err := p.repos.Notifications.Get(ctx, row.NotificationID)
	if err != nil {
		logger.Error("load notification for retry", slog.Any("error", err))
		return false
	}
	if n == nil {
		return p.finish(ctx, row, func(at time.Time) { row.MarkFailed(at, reasonRecipientGone) }, "failed")
	}

	user, ok := cache.users[n.UserID]
	if !ok {
		user, err = p.repos.Users.Get(ctx, n.UserID)
		if err != nil {
			logger.Error("load recipient for retry", slog.Any("error", err))
			return false
		}
		cache.users[n.UserID] = user
	}
	if user == nil {
		return p.finish(ctx, row, func(at time.Time) { row.MarkFailed(at, reasonRecipientGone) }, "failed")
	}

	prefs, ok := cache.prefs[n.UserID]
	if !ok {
		prefs, err = p.resolver.Resolve(ctx, n.UserID)
		if err != nil {
			logger.Error("resolve preferences for retry", slog.Any("error", err))
			return false
		}
		cache.prefs[n.UserID] = prefs
	}

	if reason, skip := skipReason(prefs, n, row.Channel); skip {
		return p.finish(ctx, row, func(at time.Time) { row.MarkSkipped(at, reason) }, "skipped")
	}

	attempt(ctx, p.senders[row.Channel], user, n, row, p.retry, p.now)
	if err := p.repos.Deliveries.Update(ctx, row); err != nil {
		logUpdateFailure(row, err)
		return false
	}
	RecordPendingProcessed(string(row.Channel), string(row.State))
	return true
}

func (p *Processor) finish(ctx context.Context, row *entity.DeliveryStatus, mark func(at time.Time), outcome string) bool {
	mark(p.now())
	if err := p.repos.Deliveries.Update(ctx, row); err != nil {
		logUpdateFailure(row, err)
		return false
	}
	RecordDelivery(string(row.Channel), string(row.State))
	RecordPendingProcessed(string(row.Channel), outcome)
	return true
}

// skipReason reports whether the recipient's current preferences no longer allow ch.
func skipReason(prefs entity.NotificationPreferences, n *entity.Notification, ch entity.Channel) (string, bool) {
	if !prefs.ChannelEnabled(ch) {
		return "channel disabled by recipient", true
	}
	if ch == entity.ChannelInApp {
		return "", false
	}
	if prefs.IsMuted(n.Type) {
		return fmt.Sprintf("recipient unsubscribed from %s", n.Type), true
	}
	if prefs.DigestFrequency.IsDigest() {
		return fmt.Sprintf("deferred to %s digest", prefs.DigestFrequency), true
	}
	return "", false
}
