package service

import (
	"testing"
	"time"
)

func TestGenerateOTP_Range(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateOTP()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		if code[0] == '0' {
			t.Fatalf("code %q below 100000", code)
		}
		for _, ch := range code {
			if ch < '0' || ch > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}
}

func TestOTPValid_Boundaries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"nil expiry", nil, false},
		{"before expiry", timePtr(now.Add(time.Minute)), true},
		{"exactly at expiry", timePtr(now), true},
		{"just past expiry", timePtr(now.Add(-time.Nanosecond)), false},
		{"long expired", timePtr(now.Add(-20 * time.Minute)), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := otpValid(tc.expiresAt, now); got != tc.want {
				t.Fatalf("otpValid(%v, %v) = %v, want %v", tc.expiresAt, now, got, tc.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
