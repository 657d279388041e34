package util //nolint:revive // package name util hosts shared formatting helpers used by the admin CLI

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatProcessingDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "—"},
		{-time.Second, "—"},
		{500 * time.Microsecond, "500µs"},
		{1234567 * time.Microsecond, "1.234s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatProcessingDuration(tt.in))
	}
}

func TestFormatDurationMs(t *testing.T) {
	assert.Equal(t, "2.5s", FormatDurationMs(2500))
	assert.Equal(t, "—", FormatDurationMs(0))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "—", FormatTime(nil))
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	assert.Equal(t, "2026-01-02T02:04:05Z", FormatTime(&ts))
}
