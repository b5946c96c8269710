package core

import (
	"strings"
	"time"
)

// TimeRange is a half-open booking window [Start, End).
type TimeRange struct {
	Start time.Time `json:"startsAt"`
	End   time.Time `json:"endsAt"`
}

// ParseTimeRange parses two ISO-8601 timestamps into a validated window.
// Both values must carry a zone offset; results are normalised to UTC.
func ParseTimeRange(startsAt, endsAt string) (TimeRange, error) {
	start, err1 := parseTimestamp(startsAt)
	end, err2 := parseTimestamp(endsAt)
	if err1 != nil || err2 != nil {
		return TimeRange{}, Validationf("Invalid startsAt or endsAt")
	}
	r := TimeRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return TimeRange{}, err
	}
	return r, nil
}

// ParseInstant parses a single ISO-8601 timestamp with zone offset.
func ParseInstant(s string) (time.Time, error) {
	t, err := parseTimestamp(s)
	if err != nil {
		return time.Time{}, Validationf("Invalid timestamp %q", s)
	}
	return t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Validate enforces End > Start.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return Validationf("Invalid startsAt or endsAt")
	}
	if !r.End.After(r.Start) {
		return Validationf("endsAt must be later than startsAt")
	}
	return nil
}

// Overlaps reports whether two half-open windows intersect.
// Windows that merely touch (one ends exactly when the other starts) do not overlap.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start.Before(o.End) && r.End.After(o.Start)
}

// Contains reports whether t falls inside the window (Start <= t < End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}
