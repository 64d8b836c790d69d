package services

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/logger"
	"time"
)

type ExpiringNotice struct {
	SubscriptionID string    `json:"subscriptionId"`
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	ExpiresAt      time.Time `json:"expiresAt"`
	DaysLeft       int       `json:"daysLeft"`
}

// NotifyExpiringSubscriptions emits one expiring notice per subscription that
// ends within daysBefore days.
func (s *Sweeper) NotifyExpiringSubscriptions(ctx context.Context, daysBefore int) (int, error) {
	if s.Events == nil {
		return 0, nil
	}
	now := s.now()
	soon := now.Add(time.Duration(daysBefore) * 24 * time.Hour)
	var subs []db.Subscription
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND expires_at > ? AND expires_at <= ? AND notified_expiring = ?", db.SubscriptionActive, now, soon, false).
		Find(&subs).Error; err != nil {
		return 0, err
	}
	sent := 0
	for _, sub := range subs {
		var user db.User
		if err := s.DB.WithContext(ctx).First(&user, "id = ?", sub.UserID).Error; err != nil {
			logger.NotifyAdmin(fmt.Sprintf("expiring notice: user lookup failed for subscription %s", sub.ID))
			continue
		}
		notice := ExpiringNotice{
			SubscriptionID: sub.ID,
			UserID:         user.ID,
			Email:          user.Email,
			Name:           user.Name,
			ExpiresAt:      *sub.ExpiresAt,
			DaysLeft:       int(sub.ExpiresAt.Sub(now).Hours()/24) + 1,
		}
		if err := s.Events.PublishJSON(ctx, EventSubscriptionExpiring, notice); err != nil {
			logger.Warn("expiring notice publish failed", zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		if err := s.DB.WithContext(ctx).Model(&db.Subscription{}).Where("id = ?", sub.ID).Update("notified_expiring", true).Error; err != nil {
			logger.Error("mark notified failed", zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}
