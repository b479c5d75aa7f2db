package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace, metricsSubsystem = "notify", "http"

// Labels use the mux pattern, never the raw path.
var routeLabels = []string{"method", "route", "status"}

var (
	requestsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "HTTP requests served, by route and status.",
	}, routeLabels)

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "Time spent serving HTTP requests.",
		// 202 の即時応答から同期ファンアウトまで
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, routeLabels)

	requestsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})

	requestsThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rate_limited_total",
		Help:      "Requests answered with 429 by the per-IP limiter.",
	}, []string{"route"})
)

// MetricsMiddleware counts and times every request by mux route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsActive.Inc()
		defer requestsActive.Dec()

		started := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		// r.Pattern is filled in by the mux during ServeHTTP.
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  routeLabel(r.Pattern),
			"status": strconv.Itoa(rec.status),
		}
		requestsServed.With(labels).Inc()
		requestLatency.With(labels).Observe(time.Since(started).Seconds())
	})
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler { return promhttp.Handler() }

// RecordRateLimited counts a 429 for the given route pattern.
func RecordRateLimited(pattern string) {
	requestsThrottled.WithLabelValues(routeLabel(pattern)).Inc()
}

func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	return pattern
}
