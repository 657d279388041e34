package util //nolint:revive // package name util hosts shared formatting helpers used by the admin CLI

import "time"

// FormatProcessingDuration formats a time.Duration for display, handling edge cases.
// Returns "—" for zero or negative durations, truncates to milliseconds for readability.
func FormatProcessingDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "—"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// FormatDurationMs formats a millisecond count as recorded on execution metrics.
func FormatDurationMs(ms int64) string {
	return FormatProcessingDuration(time.Duration(ms) * time.Millisecond)
}

// FormatTime renders t in UTC, or "—" when t is nil or zero.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "—"
	}
	return t.UTC().Format(time.RFC3339)
}
