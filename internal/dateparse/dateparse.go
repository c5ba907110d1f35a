// Package dateparse turns the date and duration flags of the schedule
// command into the local date-time strings Microsoft Graph expects.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// LocalLayout is Graph's dateTime format. The zone travels separately as a
// Windows or IANA time zone name.
const LocalLayout = "2006-01-02T15:04:05"

// Parse parses a date string which can be:
// - Natural language: "tomorrow 2pm", "next friday at noon", "in 2 hours"
// - ISO 8601 datetime: "2025-01-15T09:00:00"
// - ISO 8601 datetime with offset: "2025-01-15T09:00:00Z"
// - ISO 8601 date: "2025-01-15"
//
// Relative expressions are resolved against ref in the future direction.
// If ref is zero, time.Now() is used.
func Parse(s string, ref time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	if ref.IsZero() {
		ref = time.Now()
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(LocalLayout, s, ref.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, ref.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, ref.Location()); err == nil {
		return t, nil
	}

	t, err := naturaldate.Parse(s, ref, naturaldate.WithDirection(naturaldate.Future))
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse date %q: %w", s, err)
	}

	// naturaldate returns ref unchanged for input it does not understand
	if t.Equal(ref) && !strings.EqualFold(s, "now") {
		return time.Time{}, fmt.Errorf("could not parse date %q", s)
	}

	return t, nil
}

// ParseLocal parses a Graph local date-time. Fractional seconds, which Graph
// echoes back on created events, are accepted.
func ParseLocal(s string) (time.Time, error) {
	if t, err := time.Parse(LocalLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.9999999", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid local date-time %q, want YYYY-MM-DDThh:mm:ss", s)
	}
	return t, nil
}

// FormatLocal formats t as a Graph local date-time, dropping the zone.
func FormatLocal(t time.Time) string {
	return t.Format(LocalLayout)
}

// ParseDuration parses a duration string like "30m", "1h", "1h30m".
// A bare number is taken as minutes.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %q", s)
		}
		return time.Duration(n) * time.Minute, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("could not parse duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}
