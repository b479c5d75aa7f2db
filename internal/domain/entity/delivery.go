package entity

import (
	"time"

	"github.com/google/uuid"
)

// Channel is one delivery medium.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Channels returns every channel in fan-out order.
func Channels() []Channel {
	return []Channel{ChannelInApp, ChannelEmail, ChannelPush}
}

// IsValid reports whether c is a known channel.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

// DeliveryState is the lifecycle state of one channel attempt.
type DeliveryState string

const (
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"
	DeliverySkipped DeliveryState = "skipped"
)

// IsTerminal reports whether no further attempts will be made.
func (s DeliveryState) IsTerminal() bool {
	return s == DeliverySent || s == DeliveryFailed || s == DeliverySkipped
}

// DeliveryStatus tracks delivery of one notification over one channel.
// A row exists only for channels that were enabled when the notification was orchestrated.
type DeliveryStatus struct {
	NotificationID uuid.UUID
	Channel        Channel
	State          DeliveryState
	Attempts       int
	LastAttemptAt  *time.Time
	NextAttemptAt  time.Time
	FailureReason  *string
	CreatedAt      time.Time
}

// NewPendingDelivery returns a pending row due immediately.
func NewPendingDelivery(notificationID uuid.UUID, ch Channel, now time.Time) *DeliveryStatus {
	return &DeliveryStatus{
		NotificationID: notificationID,
		Channel:        ch,
		State:          DeliveryPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
	}
}

// NewSkippedDelivery returns a terminal skipped row carrying reason.
func NewSkippedDelivery(notificationID uuid.UUID, ch Channel, reason string, now time.Time) *DeliveryStatus {
	return &DeliveryStatus{
		NotificationID: notificationID,
		Channel:        ch,
		State:          DeliverySkipped,
		NextAttemptAt:  now,
		FailureReason:  &reason,
		CreatedAt:      now,
	}
}

// MarkSent records a successful attempt.
func (d *DeliveryStatus) MarkSent(at time.Time) {
	d.State = DeliverySent
	d.Attempts++
	d.LastAttemptAt = &at
	d.FailureReason = nil
}

// MarkFailed records a terminal failed attempt.
func (d *DeliveryStatus) MarkFailed(at time.Time, reason string) {
	d.State = DeliveryFailed
	d.Attempts++
	d.LastAttemptAt = &at
	d.FailureReason = &reason
}

// MarkRetry records a failed attempt that stays pending until next.
func (d *DeliveryStatus) MarkRetry(at, next time.Time, reason string) {
	d.State = DeliveryPending
	d.Attempts++
	d.LastAttemptAt = &at
	d.NextAttemptAt = next
	d.FailureReason = &reason
}

// MarkSkipped records that the channel no longer applies.
func (d *DeliveryStatus) MarkSkipped(at time.Time, reason string) {
	d.State = DeliverySkipped
	d.LastAttemptAt = &at
	d.FailureReason = &reason
}

// Reason returns the failure reason or "".
func (d *DeliveryStatus) Reason() string {
	if d.FailureReason == nil {
		return ""
	}
	return *d.FailureReason
}
