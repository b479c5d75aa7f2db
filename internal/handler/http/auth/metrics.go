package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 認証結果: accepted | unauthorized | forbidden
var (
	producerAuthTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "producer_auth_total",
			Help: "Producer token checks by result",
		},
		[]string{"result"},
	)

	producerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "producer_requests_total",
			Help: "Authenticated producer requests by producer and method",
		},
		[]string{"producer", "method"},
	)

	producerAuthDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "producer_auth_duration_seconds",
			Help:    "Time spent verifying producer tokens",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)
)

func recordAuthResult(result string, d time.Duration) {
	producerAuthTotal.WithLabelValues(result).Inc()
	producerAuthDuration.Observe(d.Seconds())
}

func recordProducerRequest(producer, method string) {
	producerRequestsTotal.WithLabelValues(producer, method).Inc()
}
