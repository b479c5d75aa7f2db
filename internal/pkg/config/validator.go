package config

import (
	"cmp"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

// Same field set as cron.New, so a schedule that validates here also schedules.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var errEmpty = errors.New("must not be empty")

// ValidateCronSchedule accepts five-field expressions such as "0 7 * * 1".
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("cron schedule %w", errEmpty)
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("cron schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateTimezone accepts IANA names. Images without tzdata reject everything but UTC.
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("timezone %w", errEmpty)
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", timezone, err)
	}
	return nil
}

func inRange[T cmp.Ordered](v, lo, hi T) error {
	switch {
	case lo > hi:
		return fmt.Errorf("bad bounds: %v > %v", lo, hi)
	case v < lo, v > hi:
		return fmt.Errorf("%v not within [%v, %v]", v, lo, hi)
	}
	return nil
}

// ValidateDuration checks min <= d <= max.
func ValidateDuration(d, min, max time.Duration) error { return inRange(d, min, max) }

// ValidateIntRange checks min <= v <= max.
func ValidateIntRange(v, min, max int) error { return inRange(v, min, max) }

func ValidatePositiveDuration(d time.Duration) error {
	if d > 0 {
		return nil
	}
	return fmt.Errorf("duration %v must be positive", d)
}

// ValidateHTTPURL requires an absolute http or https URL with a host.
func ValidateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return err
	case u.Scheme != "http" && u.Scheme != "https", u.Host == "":
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
