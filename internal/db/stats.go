package db

import (
	"gorm.io/gorm"
	"strings"
	"time"
)

// Aggregates used by the admin dashboard and admin routes.

func CountUsers(conn *gorm.DB) int64 {
	var count int64
	conn.Model(&User{}).Count(&count)
	return count
}

func CountUsersByRole(conn *gorm.DB, role string) int64 {
	var count int64
	conn.Model(&User{}).Where("role = ?", role).Count(&count)
	return count
}

func CountActiveSubscriptions(conn *gorm.DB) int64 {
	var count int64
	conn.Model(&Subscription{}).Where("status = ?", SubscriptionActive).Count(&count)
	return count
}

// SumPayments totals successful payments created in [from, to].
func SumPayments(conn *gorm.DB, from, to time.Time) int64 {
	var sum int64
	conn.Model(&Payment{}).
		Where("status = ? AND created_at >= ? AND created_at <= ?", PaymentSuccess, from, to).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum)
	return sum
}

func GetPayments(conn *gorm.DB, from, to time.Time, offset, limit int) []Payment {
	var pays []Payment
	conn.Model(&Payment{}).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Order("created_at desc").Offset(offset).Limit(limit).Find(&pays)
	return pays
}

func CountSince(conn *gorm.DB, model interface{}, since time.Time) int64 {
	var count int64
	conn.Model(model).Where("created_at >= ?", since).Count(&count)
	return count
}

// FindUser looks a user up by id or email.
func FindUser(conn *gorm.DB, idOrEmail string) (*User, error) {
	var user User
	err := conn.Where("id = ? OR email = ?", idOrEmail, strings.ToLower(idOrEmail)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
