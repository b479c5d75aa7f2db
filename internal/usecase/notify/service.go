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
	"catchup-notify/internal/resilience/retry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const defaultMaxConcurrentRecipients = 10

// Service orchestrates notification delivery across channels.
type Service interface {
	// Deliver creates the notification, resolves the recipient's preferences and
	// sends it over every enabled channel concurrently. It waits for every channel
	// attempt before returning. Channel failures are recorded as delivery status
	// rows and never returned.
	//
	// Returns:
	//   - ErrInvalidRequest (wrapped) for a malformed request
	//   - *DeliveryError with KindRecipientNotFound for an unknown user
	//   - *DeliveryError with KindPersistence when the store is unreachable
	Deliver(ctx context.Context, req Request) (*entity.Notification, error)

	// DeliverBulk groups requests by recipient and delivers each recipient's
	// batch in parallel with bounded concurrency. One recipient's failure never
	// aborts another's. An error is returned only when every recipient failed.
	// Caller cancellation does not stop a started batch.
	DeliverBulk(ctx context.Context, reqs []Request) (*BulkReport, error)

	// GetChannelHealth returns the breaker state of every channel sender.
	GetChannelHealth() []ChannelHealthStatus
}

// BulkReport summarizes one DeliverBulk call.
type BulkReport struct {
	Requested     int         `json:"requested"`
	Invalid       int         `json:"invalid"`
	Recipients    int         `json:"recipients"`
	Succeeded     int         `json:"succeeded"`
	Failed        int         `json:"failed"`
	Notifications []uuid.UUID `json:"notification_ids"`
	// Err accumulates every per-request and per-recipient failure.
	Err error `json:"-"`
}

// Repositories groups the stores the delivery use cases write to.
type Repositories struct {
	Notifications repository.NotificationRepository
	Deliveries    repository.DeliveryRepository
	Users         repository.UserRepository
}

// ServiceConfig tunes the orchestrator.
type ServiceConfig struct {
	// MaxConcurrentRecipients bounds bulk fan-out (recommended: 10-20)
	MaxConcurrentRecipients int
	// Retry is the backoff policy for retryable channel failures
	Retry retry.Config
	// InlineLease hides rows being sent inline from the pending sweep. It must
	// exceed the per-send timeout. Defaults to the processor's claim lease.
	InlineLease time.Duration
	// Now overrides the clock in tests
	Now func() time.Time
}

type service struct {
	repos    Repositories
	resolver *Resolver
	senders  map[entity.Channel]Sender
	ordered  []Sender
	requests *requestValidator
	retry    retry.Config
	lease    time.Duration
	maxBulk  int
	now      func() time.Time
}

// NewService creates the delivery orchestrator. Senders are keyed by their channel;
// an enabled channel without a sender records a failed delivery.
func NewService(repos Repositories, resolver *Resolver, senders []Sender, catalog TypeCatalog, cfg ServiceConfig) Service {
	if cfg.MaxConcurrentRecipients <= 0 {
		cfg.MaxConcurrentRecipients = defaultMaxConcurrentRecipients
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.PendingDeliveryConfig()
	}
	if cfg.InlineLease <= 0 {
		cfg.InlineLease = defaultClaimLease
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	byChannel := make(map[entity.Channel]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	SetChannelsEnabled(float64(len(byChannel)))

	return &service{
		repos:    repos,
		resolver: resolver,
		senders:  byChannel,
		ordered:  senders,
		requests: newRequestValidator(catalog),
		retry:    cfg.Retry,
		lease:    cfg.InlineLease,
		maxBulk:  cfg.MaxConcurrentRecipients,
		now:      cfg.Now,
	}
}

// Deliver implements Service.Deliver.
func (s *service) Deliver(ctx context.Context, req Request) (_ *entity.Notification, err error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Deliver",
		attribute.String("user_id", req.UserID.String()),
		attribute.String("type", string(req.Type)))
	defer func() { tracing.EndSpan(span, err) }()

	n, err := s.requests.build(req, s.now())
	if err != nil {
		RecordRejected("invalid_request")
		return nil, err
	}

	if err := s.deliverRecipient(context.WithoutCancel(ctx), req.UserID, []*entity.Notification{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// DeliverBulk implements Service.DeliverBulk.
func (s *service) DeliverBulk(ctx context.Context, reqs []Request) (_ *BulkReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "notify.DeliverBulk", attribute.Int("requests", len(reqs)))
	defer func() { tracing.EndSpan(span, err) }()

	// 開始後は呼び出し元のキャンセルで中断しない
	ctx = context.WithoutCancel(ctx)

	report := &BulkReport{Requested: len(reqs)}
	var errs error

	now := s.now()
	valid := make([]*entity.Notification, 0, len(reqs))
	for i, req := range reqs {
		n, err := s.requests.build(req, now)
		if err != nil {
			RecordRejected("invalid_request")
			report.Invalid++
			errs = multierr.Append(errs, fmt.Errorf("request %d: %w", i, err))
			continue
		}
		valid = append(valid, n)
	}

	batches := GroupByRecipient(valid)
	report.Recipients = len(batches)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.maxBulk)
	for _, batch := range batches {
		g.Go(func() error {
			derr := s.deliverRecipient(ctx, batch.UserID, batch.Notifications)

			mu.Lock()
			defer mu.Unlock()
			if derr != nil {
				report.Failed++
				errs = multierr.Append(errs, derr)
				RecordBulkRecipient("failure")
				slog.Warn("bulk recipient failed",
					slog.String("user_id", batch.UserID.String()),
					slog.Int("notifications", len(batch.Notifications)),
					slog.Any("error", derr))
				return nil
			}
			report.Succeeded++
			RecordBulkRecipient("success")
			for _, n := range batch.Notifications {
				report.Notifications = append(report.Notifications, n.ID)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Err = errs
	slog.Info("bulk delivery finished",
		slog.Int("requested", report.Requested),
		slog.Int("invalid", report.Invalid),
		slog.Int("recipients", report.Recipients),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed))

	if report.Succeeded == 0 && errs != nil {
		return report, fmt.Errorf("%w: %w", ErrBulkDeliveryFailed, errs)
	}
	return report, nil
}

// deliverRecipient persists and fans out every notification for one user.
// One user lookup, one preference resolution, and one insert each for
// notifications and delivery rows.
func (s *service) deliverRecipient(ctx context.Context, userID uuid.UUID, ns []*entity.Notification) error {
	user, err := s.repos.Users.Get(ctx, userID)
	if err != nil {
		return persistenceFailure(userID, fmt.Errorf("lookup recipient: %w", err))
	}
	if user == nil {
		RecordRecipientNotFound()
		slog.Warn("notification recipient not found",
			slog.String("user_id", userID.String()),
			slog.Int("notifications", len(ns)))
		return recipientNotFound(userID)
	}

	if len(ns) == 1 {
		err = s.repos.Notifications.Create(ctx, ns[0])
	} else {
		err = s.repos.Notifications.CreateBatch(ctx, ns)
	}
	if err != nil {
		return persistenceFailure(userID, fmt.Errorf("create notifications: %w", err))
	}
	for _, n := range ns {
		RecordNotificationCreated(string(n.Type))
	}

	prefs, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return persistenceFailure(userID, err)
	}

	now := s.now()
	var (
		rows  []*entity.DeliveryStatus
		plans [][]plannedSend
	)
	for _, n := range ns {
		planned, sends := s.plan(prefs, n, now)
		rows = append(rows, planned...)
		plans = append(plans, sends)
	}

	if len(rows) > 0 {
		if err := s.repos.Deliveries.CreateBatch(ctx, rows); err != nil {
			return persistenceFailure(userID, fmt.Errorf("create delivery rows: %w", err))
		}
	}

	for i, n := range ns {
		s.fanOut(ctx, user, n, plans[i])
	}
	return nil
}

type plannedSend struct {
	row    *entity.DeliveryStatus
	sender Sender
}

// plan decides the delivery rows for n.
// Disabled channels get no row. Email and push for a muted type get no row.
// Under a digest frequency email and push are recorded as skipped (deferred).
func (s *service) plan(prefs entity.NotificationPreferences, n *entity.Notification, now time.Time) ([]*entity.DeliveryStatus, []plannedSend) {
	var (
		rows  []*entity.DeliveryStatus
		sends []plannedSend
	)
	for _, ch := range entity.Channels() {
		if !prefs.ChannelEnabled(ch) {
			continue
		}
		if ch != entity.ChannelInApp {
			if prefs.IsMuted(n.Type) {
				continue
			}
			if prefs.DigestFrequency.IsDigest() {
				reason := fmt.Sprintf("deferred to %s digest", prefs.DigestFrequency)
				rows = append(rows, entity.NewSkippedDelivery(n.ID, ch, reason, now))
				RecordDelivery(string(ch), string(entity.DeliverySkipped))
				continue
			}
		}
		// 送信中の行を再送スイープが拾わないようリースを付ける
		row := entity.NewPendingDelivery(n.ID, ch, now)
		row.NextAttemptAt = now.Add(s.lease)
		rows = append(rows, row)
		sends = append(sends, plannedSend{row: row, sender: s.senders[ch]})
	}
	return rows, sends
}

// fanOut sends n over every planned channel concurrently and waits for all of them.
func (s *service) fanOut(ctx context.Context, user *entity.User, n *entity.Notification, sends []plannedSend) {
	var wg sync.WaitGroup
	for _, p := range sends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncrementActiveGoroutines()
			defer DecrementActiveGoroutines()

			attempt(ctx, p.sender, user, n, p.row, s.retry, s.now)
			if err := s.repos.Deliveries.Update(ctx, p.row); err != nil {
				logUpdateFailure(p.row, err)
			}
		}()
	}
	wg.Wait()
}

// GetChannelHealth implements Service.GetChannelHealth.
func (s *service) GetChannelHealth() []ChannelHealthStatus {
	statuses := make([]ChannelHealthStatus, 0, len(s.ordered))
	for _, sender := range s.ordered {
		if hr, ok := sender.(healthReporter); ok {
			statuses = append(statuses, hr.Health())
			continue
		}
		statuses = append(statuses, ChannelHealthStatus{Name: string(sender.Channel()), Enabled: true})
	}
	return statuses
}

func logUpdateFailure(row *entity.DeliveryStatus, err error) {
	level := slog.LevelError
	if errors.Is(err, entity.ErrNotFound) {
		// 別のスイープが先に確定させた
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "delivery status update failed",
		slog.String("notification_id", row.NotificationID.String()),
		slog.String("channel", string(row.Channel)),
		slog.String("state", string(row.State)),
		slog.Any("error", err))
}
