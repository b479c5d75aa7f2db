package worker

import (
	"catchup-notify/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics holds the sweep worker's Prometheus metrics.
//
// Metrics:
//   - worker_config_*: configuration loads and fallbacks
//   - worker_job_runs_total{job,status}: status is started, success, failure or skipped
//   - worker_job_duration_seconds{job}
//   - worker_job_items_processed_total{job}: deliveries or digests handled
//   - worker_job_last_success_timestamp{job}
type WorkerMetrics struct {
	*config.ConfigMetrics

	JobRunsTotal          *prometheus.CounterVec
	JobDurationSeconds    *prometheus.HistogramVec
	JobItemsProcessed     *prometheus.CounterVec
	JobLastSuccessSeconds *prometheus.GaugeVec
}

// NewWorkerMetrics registers the worker metrics with reg.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	f := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker", reg),

		JobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_runs_total",
			Help: "Total number of scheduled job runs by job and status",
		}, []string{"job", "status"}),

		JobDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of scheduled job runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 900},
		}, []string{"job"}),

		JobItemsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_items_processed_total",
			Help: "Total number of deliveries or digests handled by scheduled jobs",
		}, []string{"job"}),

		JobLastSuccessSeconds: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful run of each job",
		}, []string{"job"}),
	}
}

func (m *WorkerMetrics) RecordJobRun(job, status string) {
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

func (m *WorkerMetrics) RecordJobDuration(job string, seconds float64) {
	m.JobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

func (m *WorkerMetrics) RecordItemsProcessed(job string, count int) {
	m.JobItemsProcessed.WithLabelValues(job).Add(float64(count))
}

func (m *WorkerMetrics) RecordLastSuccess(job string) {
	m.JobLastSuccessSeconds.WithLabelValues(job).SetToCurrentTime()
}
