package shared

import (
	"fmt"
	"time"
)

// Timestamps are stored naive: the value is UTC and the Location is
// time.UTC, with no offset information carried further. Wire values are
// ISO-8601 with an explicit offset and are converted exactly once, in
// the API adapter. EnsureNaiveUTC is the guard at the persistence
// boundary.

// EnsureNaiveUTC verifies that t is expressed in UTC. A value carrying
// any other location is rejected with ErrTzMismatch rather than
// silently converted, so offset bugs surface at the boundary where
// they were introduced.
func EnsureNaiveUTC(t time.Time) (time.Time, error) {
	if t.IsZero() {
		return t, nil
	}
	if t.Location() != time.UTC {
		return time.Time{}, fmt.Errorf("%w: got location %s", ErrTzMismatch, t.Location())
	}
	return t, nil
}

// ToNaiveUTC converts an aware timestamp to its naive UTC equivalent.
// Only the API adapter calls this; everything inland assumes UTC.
func ToNaiveUTC(t time.Time) time.Time {
	return t.UTC()
}

// ParseWireTime decodes a marketplace timestamp. The wire format is
// ISO-8601 with explicit offset; a date-time without offset is read as
// already-UTC since some list endpoints omit the suffix.
func ParseWireTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable wire timestamp %q", s)
}

// FormatWireTime encodes a naive UTC timestamp for the wire with an
// explicit offset.
func FormatWireTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
