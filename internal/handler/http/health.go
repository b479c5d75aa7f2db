// Package http provides the HTTP surface of the notification service:
// health endpoints, metrics and the middleware shared by every route.
package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"catchup-notify/internal/handler/http/respond"
	"catchup-notify/internal/usecase/notify"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`    // "healthy", "degraded" or "unhealthy"
	Timestamp string                 `json:"timestamp"` // ISO 8601 format
	Checks    map[string]CheckStatus `json:"checks"`
	Channels  []ChannelStatus        `json:"channels,omitempty"`
	Version   string                 `json:"version"`
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ChannelStatus is the JSON form of notify.ChannelHealthStatus.
type ChannelStatus struct {
	Name               string     `json:"name"`
	Enabled            bool       `json:"enabled"`
	CircuitBreakerOpen bool       `json:"circuit_breaker_open"`
	DisabledUntil      *time.Time `json:"disabled_until,omitempty"`
}

// Pinger is implemented by the Redis cache client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ChannelHealthReporter is implemented by notify.Service.
type ChannelHealthReporter interface {
	GetChannelHealth() []notify.ChannelHealthStatus
}

// HealthHandler reports database and cache connectivity plus channel breaker state.
// The database is required; the cache is optional and only degrades the status.
// An open channel breaker degrades the status but never fails it.
type HealthHandler struct {
	DB       *sql.DB
	Cache    Pinger
	Channels ChannelHealthReporter
	Version  string
	Now      func() time.Time
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckStatus)
	status := statusHealthy

	// データベース接続チェック
	db := h.checkDatabase(ctx)
	checks["database"] = db
	status = worst(status, db.Status)

	if h.Cache != nil {
		c := CheckStatus{Status: statusHealthy}
		if err := h.Cache.Ping(ctx); err != nil {
			c = CheckStatus{Status: statusDegraded, Message: respond.SanitizeError(err)}
		}
		checks["cache"] = c
		status = worst(status, c.Status)
	}

	var channels []ChannelStatus
	if h.Channels != nil {
		for _, ch := range h.Channels.GetChannelHealth() {
			channels = append(channels, ChannelStatus(ch))
			if ch.Enabled && ch.CircuitBreakerOpen {
				status = worst(status, statusDegraded)
			}
		}
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	code := http.StatusOK
	if status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Channels:  channels,
		Version:   h.Version,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckStatus {
	if h.DB == nil {
		return CheckStatus{Status: statusUnhealthy, Message: "not configured"}
	}
	if err := h.DB.PingContext(ctx); err != nil {
		return CheckStatus{Status: statusUnhealthy, Message: respond.SanitizeError(err)}
	}

	stats := h.DB.Stats()
	details := map[string]any{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
	if stats.MaxOpenConnections > 0 {
		utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
		details["utilization_percent"] = utilization
		if utilization >= 80.0 {
			return CheckStatus{
				Status:  statusDegraded,
				Message: "connection pool utilization above 80%",
				Details: details,
			}
		}
	}
	return CheckStatus{Status: statusHealthy, Details: details}
}

func worst(a, b string) string {
	rank := map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// LiveHandler answers liveness probes. It never touches dependencies.
func LiveHandler(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadyHandler answers readiness probes with 503 until the database responds.
type ReadyHandler struct {
	DB *sql.DB
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.DB == nil || h.DB.PingContext(ctx) != nil {
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
