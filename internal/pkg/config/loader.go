// Package config loads settings from environment variables with a fail-open
// policy: an invalid value is replaced by its default and reported as a warning,
// never as an error.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Result is one loaded setting.
type Result[T any] struct {
	Value T
	// Warning describes the rejected value when FallbackApplied is true.
	Warning         string
	FallbackApplied bool
}

func fallback[T any](key, raw string, def T, err error) Result[T] {
	return Result[T]{
		Value:           def,
		Warning:         fmt.Sprintf("invalid %s=%q: %v, falling back to default '%v'", key, raw, err, def),
		FallbackApplied: true,
	}
}

// load reads key, parses it and validates it. Unset or empty keys yield def without a warning.
func load[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw := os.Getenv(key)
	if raw == "" {
		return Result[T]{Value: def}
	}
	v, err := parse(raw)
	if err != nil {
		return fallback(key, raw, def, err)
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return fallback(key, raw, def, err)
		}
	}
	return Result[T]{Value: v}
}

// String loads a string setting.
func String(key, def string, validate func(string) error) Result[string] {
	return load(key, def, func(s string) (string, error) { return s, nil }, validate)
}

// Int loads a base-10 integer setting.
func Int(key string, def int, validate func(int) error) Result[int] {
	return load(key, def, func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid integer format")
		}
		return n, nil
	}, validate)
}

// Duration loads a setting in time.ParseDuration format ("30s", "5m", "1h30m").
func Duration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return load(key, def, time.ParseDuration, validate)
}

// Bool loads a setting in strconv.ParseBool format.
func Bool(key string, def bool) Result[bool] {
	return load(key, def, func(s string) (bool, error) {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, fmt.Errorf("invalid boolean format, expected 'true' or 'false'")
		}
		return b, nil
	}, nil)
}

// Loader collects fallbacks across the settings of one component and reports
// them through its logger and metrics.
type Loader struct {
	logger   *slog.Logger
	metrics  *ConfigMetrics
	warnings []string
}

// NewLoader creates a loader. metrics may be nil.
func NewLoader(logger *slog.Logger, metrics *ConfigMetrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, metrics: metrics}
}

// Take returns r's value, recording a fallback against field when one was applied.
func Take[T any](l *Loader, field string, r Result[T]) T {
	if r.FallbackApplied {
		l.warnings = append(l.warnings, r.Warning)
		l.logger.Warn("configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", r.Warning))
		if l.metrics != nil {
			l.metrics.RecordValidationError(field)
			l.metrics.RecordFallback(field)
		}
	}
	return r.Value
}

// Finish updates the fallback gauge and load timestamp and returns every warning.
func (l *Loader) Finish() []string {
	if l.metrics != nil {
		l.metrics.SetFallbackActive(len(l.warnings) > 0)
		l.metrics.RecordLoadTimestamp()
	}
	return l.warnings
}
