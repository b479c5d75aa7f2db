package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/observability/tracing"
	"catchup-notify/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDigestArticles    = 5
	defaultDigestNews        = 5
	defaultDigestConcurrency = 5
	defaultDigestSendLease   = 10 * time.Minute
)

// DigestMailer sends a digest email. Implemented by EmailSender.
type DigestMailer interface {
	SendDigest(ctx context.Context, user *entity.User, d *entity.NotificationDigest) error
}

// Locker makes a sweep exclusive across worker replicas.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// DigestRepositories groups the stores the digest builder reads and writes.
type DigestRepositories struct {
	Digests     repository.DigestRepository
	Content     repository.ContentRepository
	Users       repository.UserRepository
	Preferences repository.PreferenceRepository
}

// BuilderConfig tunes the digest builder.
type BuilderConfig struct {
	// Location defines day and week boundaries for cycle keys
	Location    *time.Location
	MaxArticles int
	MaxNews     int
	// Concurrency bounds how many users a sweep processes at once
	Concurrency int
	// Locks guards RunSweep per digest type; a missing entry means no locking
	Locks map[entity.DigestType]Locker
	// SendLease is how long a claimed digest is reserved for one sender
	SendLease time.Duration
	Now       func() time.Time
}

// SweepStats counts the outcomes of one digest sweep.
type SweepStats struct {
	Users        int  `json:"users"`
	Built        int  `json:"built"`
	Sent         int  `json:"sent"`
	AlreadySent  int  `json:"already_sent"`
	InFlight     int  `json:"in_flight"`
	SkippedEmpty int  `json:"skipped_empty"`
	Failed       int  `json:"failed"`
	LockHeld     bool `json:"lock_held"`
}

// Builder aggregates recent content into one digest per user per cycle.
type Builder struct {
	repos    DigestRepositories
	resolver *Resolver
	mailer   DigestMailer
	cfg      BuilderConfig
}

func NewBuilder(repos DigestRepositories, resolver *Resolver, mailer DigestMailer, cfg BuilderConfig) *Builder {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = defaultDigestArticles
	}
	if cfg.MaxNews <= 0 {
		cfg.MaxNews = defaultDigestNews
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultDigestConcurrency
	}
	if cfg.SendLease <= 0 {
		cfg.SendLease = defaultDigestSendLease
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Builder{repos: repos, resolver: resolver, mailer: mailer, cfg: cfg}
}

// Build returns the user's digest for the current cycle, creating it if needed.
//
// Returns:
//   - nil, nil when the user is not on a digest frequency, muted digests, or
//     no content was published since windowStart
//   - an existing digest for the cycle as-is (a sent digest is never rebuilt)
//   - a new pending digest otherwise
func (b *Builder) Build(ctx context.Context, userID uuid.UUID, windowStart time.Time) (*entity.NotificationDigest, error) {
	d, _, err := b.build(ctx, userID, windowStart, b.cfg.Now())
	return d, err
}

// build also reports whether the digest was created by this call.
func (b *Builder) build(ctx context.Context, userID uuid.UUID, windowStart, now time.Time) (_ *entity.NotificationDigest, created bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "notify.BuildDigest", attribute.String("user_id", userID.String()))
	defer func() { tracing.EndSpan(span, err) }()

	prefs, err := b.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	digestType, ok := entity.DigestTypeFor(prefs.DigestFrequency)
	if !ok || prefs.IsMuted(entity.TypeDigest) {
		return nil, false, nil
	}

	scheduledFor := digestType.CycleStart(now, b.cfg.Location)
	existing, err := b.repos.Digests.FindByCycle(ctx, userID, digestType, scheduledFor)
	if err != nil {
		return nil, false, fmt.Errorf("find digest: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	articles, err := b.repos.Content.RecentArticles(ctx, windowStart, b.cfg.MaxArticles)
	if err != nil {
		return nil, false, fmt.Errorf("load articles: %w", err)
	}
	news, err := b.repos.Content.RecentNews(ctx, windowStart, b.cfg.MaxNews)
	if err != nil {
		return nil, false, fmt.Errorf("load news: %w", err)
	}

	content := entity.NewDigestContent(articles, news)
	if content.IsEmpty() {
		RecordDigest(string(digestType), "empty")
		return nil, false, nil
	}

	digest, err := entity.NewDigest(userID, digestType, content, scheduledFor, now)
	if err != nil {
		return nil, false, err
	}
	inserted, err := b.repos.Digests.CreateIfAbsent(ctx, digest)
	if err != nil {
		return nil, false, fmt.Errorf("create digest: %w", err)
	}
	if !inserted {
		// 同一サイクルの digest を別ワーカーが先に作成した
		winner, err := b.repos.Digests.FindByCycle(ctx, userID, digestType, scheduledFor)
		if err != nil {
			return nil, false, fmt.Errorf("reload digest: %w", err)
		}
		if winner == nil {
			return nil, false, fmt.Errorf("digest for %s at %s vanished after conflict", userID, scheduledFor.Format(time.RFC3339))
		}
		return winner, false, nil
	}

	RecordDigest(string(digestType), "built")
	return digest, true, nil
}

// Send emails d and records the outcome. A sent digest is not sent again, and
// a digest claimed by another worker returns ErrDigestClaimed without sending.
func (b *Builder) Send(ctx context.Context, d *entity.NotificationDigest) (err error) {
	ctx, span := tracing.StartSpan(ctx, "notify.SendDigest",
		attribute.String("digest_id", d.ID.String()),
		attribute.String("digest_type", string(d.Type)))
	defer func() { tracing.EndSpan(span, err) }()

	if d.Status == entity.DigestSent {
		return nil
	}

	now := b.cfg.Now()
	claimed, err := b.repos.Digests.Claim(ctx, d.ID, now, now.Add(b.cfg.SendLease))
	if err != nil {
		return fmt.Errorf("claim digest: %w", err)
	}
	if !claimed {
		RecordDigest(string(d.Type), "in_flight")
		return ErrDigestClaimed
	}

	user, err := b.repos.Users.Get(ctx, d.UserID)
	if err != nil {
		return fmt.Errorf("load digest recipient: %w", err)
	}
	if user == nil {
		return b.fail(ctx, d, reasonRecipientGone, ErrRecipientNotFound)
	}

	if sendErr := b.mailer.SendDigest(ctx, user, d); sendErr != nil {
		return b.fail(ctx, d, sendErr.Error(), sendErr)
	}

	at := b.cfg.Now()
	if err := b.repos.Digests.MarkSent(ctx, d.ID, at); err != nil {
		return fmt.Errorf("mark digest sent: %w", err)
	}
	if err := d.MarkSent(at); err != nil {
		return err
	}
	RecordDigest(string(d.Type), "sent")
	return nil
}

func (b *Builder) fail(ctx context.Context, d *entity.NotificationDigest, reason string, cause error) error {
	RecordDigest(string(d.Type), "failed")
	if err := b.repos.Digests.MarkFailed(ctx, d.ID, reason); err != nil {
		return multierr.Append(cause, fmt.Errorf("mark digest failed: %w", err))
	}
	if err := d.MarkFailed(reason); err != nil {
		return multierr.Append(cause, err)
	}
	return fmt.Errorf("send digest %s: %w", d.ID, cause)
}

// RunSweep builds and sends digests of type t for every user on that frequency.
// Users are processed in parallel and one user's failure never blocks another's.
// When another replica holds the sweep lock the sweep is skipped.
func (b *Builder) RunSweep(ctx context.Context, t entity.DigestType, now time.Time) (stats SweepStats, err error) {
	if !t.IsValid() {
		return stats, fmt.Errorf("%w: unknown digest type %q", ErrInvalidRequest, t)
	}

	if lock := b.cfg.Locks[t]; lock != nil {
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return stats, fmt.Errorf("acquire %s digest lock: %w", t, err)
		}
		if !acquired {
			slog.Info("digest sweep already running elsewhere", slog.String("digest_type", string(t)))
			stats.LockHeld = true
			return stats, nil
		}
		defer func() {
			if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
				slog.Warn("release digest lock", slog.String("digest_type", string(t)), slog.Any("error", rerr))
			}
		}()
	}

	freq := entity.FrequencyDaily
	if t == entity.DigestWeekly {
		freq = entity.FrequencyWeekly
	}
	userIDs, err := b.repos.Preferences.ListUserIDsByFrequency(ctx, freq)
	if err != nil {
		return stats, fmt.Errorf("list %s digest users: %w", t, err)
	}
	stats.Users = len(userIDs)

	windowStart := now.Add(-t.Window())

	var (
		mu   sync.Mutex
		errs error
	)
	g := new(errgroup.Group)
	g.SetLimit(b.cfg.Concurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			outcome, uerr := b.processUser(ctx, userID, windowStart, now)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case "sent":
				stats.Built++
				stats.Sent++
			case "resent":
				stats.Sent++
			case "already_sent":
				stats.AlreadySent++
			case "in_flight":
				stats.InFlight++
			case "empty":
				stats.SkippedEmpty++
			case "failed":
				stats.Failed++
				errs = multierr.Append(errs, uerr)
			}
			return nil
		})
	}
	_ = g.Wait()

	logger := slog.With(
		slog.String("digest_type", string(t)),
		slog.Int("users", stats.Users),
		slog.Int("built", stats.Built),
		slog.Int("sent", stats.Sent),
		slog.Int("in_flight", stats.InFlight),
		slog.Int("skipped_empty", stats.SkippedEmpty),
		slog.Int("failed", stats.Failed))
	if errs != nil {
		logger.Warn("digest sweep finished with failures", slog.Any("errors", errs))
	} else {
		logger.Info("digest sweep finished")
	}
	return stats, nil
}

// processUser runs build-then-send for one user and names the outcome.
func (b *Builder) processUser(ctx context.Context, userID uuid.UUID, windowStart, now time.Time) (string, error) {
	d, created, err := b.build(ctx, userID, windowStart, now)
	if err != nil {
		return "failed", fmt.Errorf("build digest for %s: %w", userID, err)
	}
	if d == nil {
		return "empty", nil
	}
	if d.Status == entity.DigestSent {
		return "already_sent", nil
	}

	if err := b.Send(ctx, d); err != nil {
		if errors.Is(err, ErrDigestClaimed) {
			return "in_flight", nil
		}
		return "failed", err
	}
	if created {
		return "sent", nil
	}
	return "resent", nil
}

// RunDailyDigestSweep is the scheduler entry point for daily digests.
func (b *Builder) RunDailyDigestSweep(ctx context.Context) (SweepStats, error) {
	return b.RunSweep(ctx, entity.DigestDaily, b.cfg.Now())
}

// RunWeeklyDigestSweep is the scheduler entry point for weekly digests.
func (b *Builder) RunWeeklyDigestSweep(ctx context.Context) (SweepStats, error) {
	return b.RunSweep(ctx, entity.DigestWeekly, b.cfg.Now())
}
