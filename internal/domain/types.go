package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrValidation marks input that can never succeed as given.
var ErrValidation = errors.New("validation failed")

// Invalidf wraps ErrValidation with a field level message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

const maxNameLength = 255

// ParseDate parses a YYYY-MM-DD value. Empty input yields nil.
func ParseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, Invalidf("invalid date %q", raw)
	}
	return &t, nil
}

// FormatDate renders d as YYYY-MM-DD, or "" when unset.
func FormatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(time.DateOnly)
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Progress returns done/total as a percentage rounded to two decimals.
func Progress(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(done)/float64(total)*100*100) / 100
}

func validateName(field, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return Invalidf("%s is required", field)
	}
	if len([]rune(v)) > maxNameLength {
		return Invalidf("%s must be at most %d characters", field, maxNameLength)
	}
	return nil
}

func validateRange(startField string, start *time.Time, endField string, end *time.Time) error {
	if start == nil || end == nil {
		return nil
	}
	if end.Before(*start) {
		return Invalidf("%s must be on or after %s", endField, startField)
	}
	return nil
}
