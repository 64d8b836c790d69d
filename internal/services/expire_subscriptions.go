package services

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/logger"
)

// Sweeper holds the periodic maintenance jobs.
type Sweeper struct {
	*Deps
}

func NewSweeper(d *Deps) *Sweeper {
	return &Sweeper{Deps: d}
}

// ExpireSubscriptions moves lapsed ACTIVE subscriptions to EXPIRED and revokes
// premium from users left without a valid period.
func (s *Sweeper) ExpireSubscriptions(ctx context.Context) (int, error) {
	now := s.now()
	var expired []db.Subscription
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND expires_at <= ?", db.SubscriptionActive, now).
			Find(&expired).Error; err != nil {
			return err
		}
		users := map[string]struct{}{}
		for i := range expired {
			sub := &expired[i]
			if err := tx.Model(&db.Subscription{}).Where("id = ?", sub.ID).Update("status", db.SubscriptionExpired).Error; err != nil {
				return err
			}
			sub.Status = db.SubscriptionExpired
			if err := writeSubscriptionLog(tx, sub.UserID, sub.ID, ActionExpired, now); err != nil {
				return err
			}
			users[sub.UserID] = struct{}{}
		}
		for userID := range users {
			var remaining int64
			if err := tx.Model(&db.Subscription{}).
				Where("user_id = ? AND status = ? AND expires_at > ?", userID, db.SubscriptionActive, now).
				Count(&remaining).Error; err != nil {
				return err
			}
			if remaining > 0 {
				continue
			}
			if err := revokePremium(tx, userID); err != nil {
				return err
			}
		}
		// Premium granted without a subscription row lapses the same way.
		var lapsed []string
		if err := tx.Model(&db.User{}).
			Where("is_premium = ? AND premium_expires IS NOT NULL AND premium_expires <= ?", true, now).
			Pluck("id", &lapsed).Error; err != nil {
			return err
		}
		for _, userID := range lapsed {
			if err := revokePremium(tx, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	for i := range expired {
		s.publish(ctx, EventSubscriptionExpired, subscriptionEvent(&expired[i]))
	}
	if len(expired) > 0 {
		logger.Info("subscriptions expired", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// ExpireStaleBookings closes PENDING bookings whose slot has passed and which
// have no checkout in flight.
func (s *Sweeper) ExpireStaleBookings(ctx context.Context) (int64, error) {
	now := s.now()
	res := s.DB.WithContext(ctx).Model(&db.Booking{}).
		Where("status = ? AND scheduled_at < ?", db.BookingPending, now).
		Where("id NOT IN (?)", s.DB.Model(&db.Payment{}).Select("booking_id").
			Where("status = ? AND booking_id IS NOT NULL", db.PaymentPending)).
		Update("status", db.BookingExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire stale bookings: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logger.Info("stale bookings expired", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
