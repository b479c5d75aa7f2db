package notify

import (
	"context"
	"testing"
	"time"

	"catchup-notify/internal/domain/entity"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	tests := []struct {
		name   string
		record func()
		value  func() float64
	}{
		{
			name:   "created",
			record: func() { RecordNotificationCreated("breaking_news") },
			value:  func() float64 { return testutil.ToFloat64(notificationCreatedTotal.WithLabelValues("breaking_news")) },
		},
		{
			name:   "recipient not found",
			record: RecordRecipientNotFound,
			value:  func() float64 { return testutil.ToFloat64(notificationRejectedTotal.WithLabelValues("recipient_not_found")) },
		},
		{
			name:   "success",
			record: func() { RecordSuccess("push", 20*time.Millisecond) },
			value:  func() float64 { return testutil.ToFloat64(notificationSentTotal.WithLabelValues("push", "success")) },
		},
		{
			name:   "failure",
			record: func() { RecordFailure("push", time.Second) },
			value:  func() float64 { return testutil.ToFloat64(notificationSentTotal.WithLabelValues("push", "failure")) },
		},
		{
			name:   "pending processed",
			record: func() { RecordPendingProcessed("email", "skipped") },
			value:  func() float64 { return testutil.ToFloat64(pendingProcessedTotal.WithLabelValues("email", "skipped")) },
		},
		{
			name:   "digest",
			record: func() { RecordDigest("weekly", "sent") },
			value:  func() float64 { return testutil.ToFloat64(digestTotal.WithLabelValues("weekly", "sent")) },
		},
		{
			name:   "circuit breaker",
			record: func() { RecordCircuitBreakerRejected("email") },
			value:  func() float64 { return testutil.ToFloat64(circuitBreakerRejectedTotal.WithLabelValues("email")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.value()
			tt.record()
			assert.Equal(t, before+1, tt.value())
		})
	}
}

func TestActiveGoroutinesGauge(t *testing.T) {
	before := testutil.ToFloat64(activeNotifications)
	IncrementActiveGoroutines()
	IncrementActiveGoroutines()
	DecrementActiveGoroutines()
	assert.Equal(t, before+1, testutil.ToFloat64(activeNotifications))
	DecrementActiveGoroutines()
}

func TestDeliver_RecordsDeliveryMetrics(t *testing.T) {
	sent := deliveryStatusTotal.WithLabelValues("email", "sent")
	skipped := deliveryStatusTotal.WithLabelValues("push", "skipped")
	sentBefore := testutil.ToFloat64(sent)
	skippedBefore := testutil.ToFloat64(skipped)

	user := newUser("r@example.com", "tok")
	h := newHarness(user)
	_, err := h.service().Deliver(context.Background(), newRequest(user.ID))
	require.NoError(t, err)
	assert.Equal(t, sentBefore+1, testutil.ToFloat64(sent))

	h.prefs.set(entity.NotificationPreferences{
		UserID: user.ID, InAppEnabled: true, PushEnabled: true, DigestFrequency: entity.FrequencyDaily,
	})
	_, err = h.service().Deliver(context.Background(), newRequest(user.ID))
	require.NoError(t, err)
	assert.Equal(t, skippedBefore+1, testutil.ToFloat64(skipped))
}

func TestNewService_SetsChannelsEnabled(t *testing.T) {
	newHarness().service()
	assert.Equal(t, float64(3), testutil.ToFloat64(channelsEnabled))
}
