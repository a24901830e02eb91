package utils_test

import (
	"testing"
	"time"

	"worktracker/pkg/utils"
)

func TestFormatHMS(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "00:00:00"},
		{3, "00:00:03"},
		{61, "00:01:01"},
		{3661, "01:01:01"},
		{360000, "100:00:00"},
		{-5, "00:00:00"},
	}
	for _, tt := range tests {
		if got := utils.FormatHMS(tt.seconds); got != tt.want {
			t.Errorf("FormatHMS(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatHours(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0, "0.00"},
		{1.5, "1.50"},
		{2.345, "2.35"},
		{10, "10.00"},
	}
	for _, tt := range tests {
		if got := utils.FormatHours(tt.hours); got != tt.want {
			t.Errorf("FormatHours(%v) = %q, want %q", tt.hours, got, tt.want)
		}
	}
}

func TestElapsedSeconds(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		now  time.Time
		want int64
	}{
		{start.Add(10 * time.Second), 10},
		{start.Add(10*time.Second + 999*time.Millisecond), 10},
		{start, 0},
		{start.Add(-time.Minute), 0},
	}
	for _, tt := range tests {
		if got := utils.ElapsedSeconds(start, tt.now); got != tt.want {
			t.Errorf("ElapsedSeconds(%v) = %d, want %d", tt.now, got, tt.want)
		}
	}
}

func TestISOTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 5, 8, 9, 10, 123456789, time.UTC)
	if got, want := utils.ISOTimestamp(ts), "2024-03-05T08:09:10.123Z"; got != want {
		t.Errorf("ISOTimestamp = %q, want %q", got, want)
	}
}

func TestEpochMillisRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 5, 8, 9, 10, 123000000, time.UTC)
	ms := utils.EpochMillis(ts)
	if !utils.FromEpochMillis(ms).Equal(ts) {
		t.Errorf("FromEpochMillis(EpochMillis(%v)) = %v", ts, utils.FromEpochMillis(ms))
	}
}

func TestLastDays(t *testing.T) {
	now := time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)
	from, to := utils.LastDays(now, 7)
	if want := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Errorf("LastDays from = %v, want %v", from, want)
	}
	if want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC); !to.Equal(want) {
		t.Errorf("LastDays to = %v, want %v", to, want)
	}
}

func TestParseDate(t *testing.T) {
	d, err := utils.ParseDate("2024-02-29", time.UTC)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Day() != 29 || d.Month() != time.February {
		t.Errorf("ParseDate = %v", d)
	}
	if _, err := utils.ParseDate("", time.UTC); err == nil {
		t.Error("ParseDate(\"\") expected error")
	}
}

func TestTruncateString(t *testing.T) {
	if got := utils.TruncateString("hello world", 8); got != "hello..." {
		t.Errorf("TruncateString = %q", got)
	}
	if got := utils.TruncateString("short", 8); got != "short" {
		t.Errorf("TruncateString = %q", got)
	}
}
