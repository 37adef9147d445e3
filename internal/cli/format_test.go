package cli

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{500 * time.Millisecond, "1s"},
		{30 * time.Second, "30s"},
		{60 * time.Second, "1m"},
		{150 * time.Second, "2m30s"},
		{8 * time.Minute, "8m"},
		{time.Hour, "1h"},
		{65 * time.Minute, "1h5m"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := FormatRemaining(0, now); got != "expired" {
		t.Errorf("zero deadline = %q", got)
	}
	if got := FormatRemaining(now.Add(-time.Minute).UnixMilli(), now); got != "expired" {
		t.Errorf("past deadline = %q", got)
	}
	if got := FormatRemaining(now.Add(30*time.Second).UnixMilli(), now); got != "30s" {
		t.Errorf("live deadline = %q, want 30s", got)
	}
}

func TestFormatEpochMs(t *testing.T) {
	if got := FormatEpochMs(0); got != "-" {
		t.Errorf("zero = %q, want -", got)
	}
	if got := FormatEpochMs(-5); got != "-" {
		t.Errorf("negative = %q, want -", got)
	}
	if got := FormatEpochMs(time.Now().UnixMilli()); got == "-" {
		t.Error("live timestamp rendered as -")
	}
}

func TestOnOff(t *testing.T) {
	if OnOff(true) != "on" || OnOff(false) != "off" {
		t.Error("unexpected OnOff rendering")
	}
}
