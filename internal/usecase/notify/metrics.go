package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for notification delivery monitoring
var (
	// notificationCreatedTotal tracks notifications persisted per type
	notificationCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_created_total",
			Help: "Total number of notifications created",
		},
		[]string{"type"},
	)

	// notificationRejectedTotal tracks requests refused before persistence
	notificationRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_rejected_total",
			Help: "Total number of notification requests rejected",
		},
		[]string{"reason"}, // reason: invalid_request|recipient_not_found
	)

	// notificationDispatchedTotal tracks send attempts per channel
	notificationDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatched_total",
			Help: "Total number of channel send attempts",
		},
		[]string{"channel"},
	)

	// notificationSentTotal tracks send results per channel
	notificationSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sent_total",
			Help: "Total number of channel send results",
		},
		[]string{"channel", "status"}, // status: success|failure
	)

	// notificationDuration tracks send duration
	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Channel send duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// deliveryStatusTotal tracks delivery rows by recorded state
	deliveryStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_status_total",
			Help: "Total number of delivery outcomes recorded",
		},
		[]string{"channel", "state"}, // state: sent|failed|skipped|retry
	)

	// pendingProcessedTotal tracks rows handled by the pending retry sweep
	pendingProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_pending_processed_total",
			Help: "Total number of pending deliveries processed by retry sweeps",
		},
		[]string{"channel", "outcome"},
	)

	// digestTotal tracks digest lifecycle events
	digestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_digest_total",
			Help: "Total number of digest events",
		},
		[]string{"digest_type", "outcome"}, // outcome: built|empty|sent|failed
	)

	// bulkRecipientsTotal tracks bulk delivery per-recipient results
	bulkRecipientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_bulk_recipients_total",
			Help: "Total number of recipients processed by bulk delivery",
		},
		[]string{"status"},
	)

	// invalidPreferencesTotal tracks stored preferences that had to be normalized
	invalidPreferencesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_invalid_preferences_total",
			Help: "Total number of invalid stored preference rows normalized to defaults",
		},
	)

	// circuitBreakerRejectedTotal tracks sends refused by an open breaker
	circuitBreakerRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_circuit_breaker_rejected_total",
			Help: "Total number of sends rejected by an open circuit breaker",
		},
		[]string{"channel"},
	)

	// activeNotifications tracks currently active channel send goroutines
	activeNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_active_goroutines",
			Help: "Number of active notification goroutines",
		},
	)

	// channelsEnabled tracks number of registered channel senders
	channelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_channels_enabled",
			Help: "Number of registered notification channels",
		},
	)
)

// RecordNotificationCreated records a persisted notification.
func RecordNotificationCreated(notificationType string) {
	notificationCreatedTotal.WithLabelValues(notificationType).Inc()
}

// RecordRejected records a request refused before persistence.
func RecordRejected(reason string) {
	notificationRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordRecipientNotFound records a request for an unknown user.
func RecordRecipientNotFound() {
	RecordRejected("recipient_not_found")
}

// RecordDispatch records a channel send attempt.
func RecordDispatch(channel string) {
	notificationDispatchedTotal.WithLabelValues(channel).Inc()
}

// RecordSuccess records a successful send and its duration.
func RecordSuccess(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "success").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordFailure records a failed send and its duration.
func RecordFailure(channel string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(channel, "failure").Inc()
	notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDelivery records a delivery row outcome.
func RecordDelivery(channel, state string) {
	deliveryStatusTotal.WithLabelValues(channel, state).Inc()
}

// RecordPendingProcessed records one row handled by a retry sweep.
func RecordPendingProcessed(channel, outcome string) {
	pendingProcessedTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordDigest records a digest lifecycle event.
func RecordDigest(digestType, outcome string) {
	digestTotal.WithLabelValues(digestType, outcome).Inc()
}

// RecordBulkRecipient records one recipient's bulk delivery result.
func RecordBulkRecipient(status string) {
	bulkRecipientsTotal.WithLabelValues(status).Inc()
}

// RecordInvalidPreferences records a normalized preference row.
func RecordInvalidPreferences() {
	invalidPreferencesTotal.Inc()
}

// RecordCircuitBreakerRejected records a send refused by an open breaker.
func RecordCircuitBreakerRejected(channel string) {
	circuitBreakerRejectedTotal.WithLabelValues(channel).Inc()
}

// IncrementActiveGoroutines increments the active goroutines gauge by 1.
func IncrementActiveGoroutines() {
	activeNotifications.Inc()
}

// DecrementActiveGoroutines decrements the active goroutines gauge by 1.
func DecrementActiveGoroutines() {
	activeNotifications.Dec()
}

// SetChannelsEnabled sets the number of registered channel senders.
func SetChannelsEnabled(count float64) {
	channelsEnabled.Set(count)
}
