package unsubscribe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var unsubscribeTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_unsubscribe_total",
		Help: "Total number of unsubscribe link requests by type and result",
	},
	[]string{"type", "result"},
)

// RecordUnsubscribe records one processed unsubscribe link.
func RecordUnsubscribe(notificationType, result string) {
	if notificationType == "" {
		notificationType = "unknown"
	}
	unsubscribeTotal.WithLabelValues(notificationType, result).Inc()
}
