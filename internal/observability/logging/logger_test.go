package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"catchup-notify/internal/handler/http/requestid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	return m
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "")

	logger.Debug("hidden")
	logger.Info("delivered", slog.String("channel", "email"))

	line := decodeLine(t, &buf)
	assert.Equal(t, "delivered", line["msg"])
	assert.Equal(t, "email", line["channel"])
	assert.NotContains(t, line, "source")
}

func TestNewLogger_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "debug", "json").Debug("claimed")

	line := decodeLine(t, &buf)
	assert.Contains(t, line, "source")
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "warn", "TEXT").Warn("breaker open", slog.String("channel", "push"))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "time="))
	assert.Contains(t, out, "channel=push")
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "info", "")

	ctx := requestid.NewContext(context.Background(), "req-42")
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(ctx, "op")
	defer span.End()

	WithRequestID(ctx, base).Info("hello")

	line := decodeLine(t, &buf)
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
}

func TestWithRequestID_Empty(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "info", "")

	WithRequestID(context.Background(), base).Info("hello")

	line := decodeLine(t, &buf)
	assert.NotContains(t, line, "request_id")
	assert.NotContains(t, line, "trace_id")
}

func TestFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	custom := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	assert.Same(t, custom, FromContext(WithLogger(context.Background(), custom)))
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "info", "")

	h := requestid.Middleware(Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside handler")
	})))

	req := httptest.NewRequest(http.MethodPost, "/notifications", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := decodeLine(t, &buf)
	assert.Equal(t, "inside handler", line["msg"])
	assert.Equal(t, "abc-123", line["request_id"])
}
