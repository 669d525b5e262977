package repo

import "time"

// Timestamps are stored as UTC RFC3339 text with a fixed nine-digit
// fraction on both dialects rather than native TIMESTAMPTZ: it keeps every
// repo query dialect-agnostic (no driver-specific time.Time scan behavior
// to special-case for Sqlite). The SQL time comparisons (stale-lock
// detection, event ordering) compare this text directly; the fixed width
// makes text order match time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
