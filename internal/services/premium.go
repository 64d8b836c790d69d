package services

import (
	"mentor-marketplace/internal/db"
	"time"
)

// IsPremiumValid is the single premium check: flag set and expiry strictly in the future.
func IsPremiumValid(isPremium bool, expires *time.Time, now time.Time) bool {
	return isPremium && expires != nil && expires.After(now)
}

func userPremiumValid(u *db.User, now time.Time) bool {
	return IsPremiumValid(u.IsPremium, u.PremiumExpires, now)
}

// CalculatePrice returns round(rate/60 * minutes) with halves rounded up.
// A nil rate falls back to fallbackRate.
func CalculatePrice(rate *int, fallbackRate, minutes int) int {
	r := fallbackRate
	if rate != nil {
		r = *rate
	}
	return (r*minutes*2 + 60) / 120
}

// MinorUnits converts a whole-unit price to the provider's smallest currency unit.
func MinorUnits(price int) int64 {
	return int64(price) * 100
}
