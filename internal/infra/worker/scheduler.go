package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"catchup-notify/internal/handler/http/respond"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled sweep. Run returns how many items it handled.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs jobs on cron schedules. A run that is still in progress when
// its next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	base    context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	metrics *WorkerMetrics
	logger  *slog.Logger
}

// NewScheduler creates a stopped scheduler. Every run is bounded by timeout and
// is cancelled when Stop is called.
func NewScheduler(loc *time.Location, timeout time.Duration, metrics *WorkerMetrics, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		base:    base,
		cancel:  cancel,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Add registers job. The schedule must be a five-field cron expression.
func (s *Scheduler) Add(job Job) error {
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.RunOnce(job) }); err != nil {
		return fmt.Errorf("add job %s: %w", job.Name, err)
	}
	s.logger.Info("job scheduled",
		slog.String("job", job.Name),
		slog.String("schedule", job.Schedule))
	return nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling, cancels running jobs and waits for them to return or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// RunOnce executes job immediately with the scheduler's timeout and metrics.
func (s *Scheduler) RunOnce(job Job) {
	start := time.Now()
	s.record(func(m *WorkerMetrics) { m.RecordJobRun(job.Name, "started") })

	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	defer cancel()

	n, err := job.Run(ctx)
	elapsed := time.Since(start)
	s.record(func(m *WorkerMetrics) {
		m.RecordJobDuration(job.Name, elapsed.Seconds())
		m.RecordItemsProcessed(job.Name, n)
	})

	if err != nil {
		// 機密情報をマスクしてログ出力
		s.logger.Error("job failed",
			slog.String("job", job.Name),
			slog.Int("processed", n),
			slog.Duration("duration", elapsed),
			slog.String("error", respond.SanitizeError(err)))
		s.record(func(m *WorkerMetrics) { m.RecordJobRun(job.Name, "failure") })
		return
	}

	s.record(func(m *WorkerMetrics) {
		m.RecordJobRun(job.Name, "success")
		m.RecordLastSuccess(job.Name)
	})
	s.logger.Info("job completed",
		slog.String("job", job.Name),
		slog.Int("processed", n),
		slog.Duration("duration", elapsed))
}

func (s *Scheduler) record(fn func(m *WorkerMetrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
