package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"catchup-notify/internal/domain/entity"
	"catchup-notify/internal/resilience/retry"
)

const defaultSendTimeout = 10 * time.Second

// attempt makes one send and records its outcome on row. Panics in the sender
// are recovered and recorded as internal failures.
func attempt(ctx context.Context, sender Sender, user *entity.User, n *entity.Notification, row *entity.DeliveryStatus, policy retry.Config, now func() time.Time) {
	ch := row.Channel
	startTime := time.Now()
	RecordDispatch(string(ch))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in channel sender",
					slog.String("channel", string(ch)),
					slog.String("notification_id", n.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = &SendError{Channel: ch, Kind: SendInternal, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		if sender == nil {
			return &SendError{Channel: ch, Kind: SendInternal, Err: ErrNoSender}
		}
		return sender.Send(ctx, user, n)
	}()
	duration := time.Since(startTime)

	applyOutcome(row, err, policy, now())

	if err != nil {
		RecordFailure(string(ch), duration)
		slog.Warn("Channel delivery failed",
			slog.String("channel", string(ch)),
			slog.String("notification_id", n.ID.String()),
			slog.String("user_id", user.ID.String()),
			slog.String("state", string(row.State)),
			slog.Int("attempts", row.Attempts),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}
	RecordSuccess(string(ch), duration)
	slog.Info("Channel delivery sent",
		slog.String("channel", string(ch)),
		slog.String("notification_id", n.ID.String()),
		slog.Duration("send_duration", duration))
}

// applyOutcome moves row to sent, pending (retry scheduled) or failed.
// Only retryable failures with budget left stay pending.
func applyOutcome(row *entity.DeliveryStatus, sendErr error, policy retry.Config, at time.Time) {
	if sendErr == nil {
		row.MarkSent(at)
		RecordDelivery(string(row.Channel), string(entity.DeliverySent))
		return
	}

	se := asSendError(row.Channel, sendErr)
	next := row.Attempts + 1
	if se.Retryable() && !retry.Exhausted(policy, next) {
		row.MarkRetry(at, at.Add(retry.NextDelay(policy, next)), se.Error())
		RecordDelivery(string(row.Channel), "retry")
		return
	}
	row.MarkFailed(at, se.Error())
	RecordDelivery(string(row.Channel), string(entity.DeliveryFailed))
}
