package screenstate_test

import (
	"testing"

	"worktracker/pkg/screenstate"
)

func TestParseLockedHint(t *testing.T) {
	tests := []struct {
		out  string
		want bool
	}{
		{"LockedHint=yes\n", true},
		{"LockedHint=no\n", false},
		{"Id=2\nLockedHint=yes\n", true},
		{"", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := screenstate.ParseLockedHint(tt.out); got != tt.want {
			t.Errorf("ParseLockedHint(%q) = %v, want %v", tt.out, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    screenstate.State
		want string
	}{
		{screenstate.Active, "active"},
		{screenstate.Locked, "locked"},
		{screenstate.Screensaver, "screensaver"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
