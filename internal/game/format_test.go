package game

import (
	"testing"
	"time"
)

func TestFormatFactor(t *testing.T) {
	tests := map[int64]string{
		0:        "0.00",
		100:      "1.00",
		250:      "2.50",
		2097:     "20.97",
		12100975: "121009.75",
	}
	for in, want := range tests {
		if got := FormatFactor(in); got != want {
			t.Errorf("FormatFactor(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatTimeDiff(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, ""},
		{5 * time.Second, "5s"},
		{65 * time.Second, "1m 5s"},
		{3*time.Hour + 2*time.Minute + 5*time.Second, "3h 2m"},
		{26 * time.Hour, "1d 2h"},
		{24*time.Hour + 5*time.Minute, "1d 5m"},
	}
	for _, tt := range tests {
		if got := FormatTimeDiff(tt.d); got != tt.want {
			t.Errorf("FormatTimeDiff(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
