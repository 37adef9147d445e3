// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"time"
)

// FormatEpochMs renders an epoch-millisecond timestamp in local time,
// or "-" for zero.
func FormatEpochMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

// FormatRemaining renders the time left until an epoch-millisecond
// deadline, rounded up to whole seconds. Past or zero deadlines render
// as "expired".
func FormatRemaining(deadlineMs int64, now time.Time) string {
	if deadlineMs <= 0 {
		return "expired"
	}
	remaining := time.Duration(deadlineMs-now.UnixMilli()) * time.Millisecond
	if remaining <= 0 {
		return "expired"
	}
	return FormatDuration(remaining)
}

// FormatDuration renders a duration compactly: "45s", "2m30s", "1h5m".
// Sub-second remainders round up so "0s" never shows for a live
// deadline.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	secs := int64((d + time.Second - 1) / time.Second)

	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60

	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	case m > 0 && s > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// OnOff renders a boolean as "on" or "off".
func OnOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
