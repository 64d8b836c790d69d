package services

import (
	"testing"
	"time"
)

func TestIsPremiumValid(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		desc    string
		flag    bool
		expires *time.Time
		want    bool
	}{
		{"flag and future expiry", true, &future, true},
		{"flag without expiry", true, nil, false},
		{"flag with past expiry", true, &past, false},
		{"expiry equal to now", true, &now, false},
		{"no flag", false, &future, false},
	}
	for _, tt := range tests {
		if got := IsPremiumValid(tt.flag, tt.expires, now); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestCalculatePrice(t *testing.T) {
	rate := func(v int) *int { return &v }
	tests := []struct {
		desc    string
		rate    *int
		minutes int
		want    int
	}{
		{"fallback rate half hour", nil, 30, 100},
		{"half unit rounds up", rate(90), 45, 68},
		{"full hour", rate(120), 60, 120},
		{"zero rate", rate(0), 60, 0},
		{"below half rounds down", rate(10), 1, 0},
	}
	for _, tt := range tests {
		if got := CalculatePrice(tt.rate, 200, tt.minutes); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.desc, got, tt.want)
		}
	}
}
