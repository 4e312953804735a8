package security

import (
	"testing"
	"time"
)

func TestHasRemainingLifetime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "expires in 29 seconds", expiresAt: now.Add(29 * time.Second), want: false},
		{name: "expires in exactly 30 seconds", expiresAt: now.Add(30 * time.Second), want: true},
		{name: "expires in 31 seconds", expiresAt: now.Add(31 * time.Second), want: true},
		{name: "expires in an hour", expiresAt: now.Add(time.Hour), want: true},
		{name: "already expired", expiresAt: now.Add(-time.Minute), want: false},
		{name: "zero time", expiresAt: time.Time{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasRemainingLifetime(tt.expiresAt, now, DefaultExpiryMargin)
			if got != tt.want {
				t.Errorf("HasRemainingLifetime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasRemainingLifetime_SubSecondNow(t *testing.T) {
	// now carries nanoseconds; the comparison still happens in whole seconds.
	now := time.Unix(1_700_000_000, 900_000_000)
	if HasRemainingLifetime(time.Unix(1_700_000_029, 0), now, DefaultExpiryMargin) {
		t.Error("29s remaining should be absent")
	}
	if !HasRemainingLifetime(time.Unix(1_700_000_031, 0), now, DefaultExpiryMargin) {
		t.Error("31s remaining should be present")
	}
}
