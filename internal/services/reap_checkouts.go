package services

import (
	"context"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/logger"
)

// ReapAbandonedCheckouts fails payments that stayed PENDING past the abandon
// window and releases the rows they reserved.
func (s *Sweeper) ReapAbandonedCheckouts(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.Settings.CheckoutAbandonAfter)
	var stale []db.Payment
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND created_at < ?", db.PaymentPending, cutoff).
		Order("created_at asc").Limit(500).
		Find(&stale).Error; err != nil {
		return 0, err
	}
	reaped := 0
	for _, candidate := range stale {
		var p db.Payment
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", candidate.ID).Error; err != nil {
				return err
			}
			if p.Status != db.PaymentPending {
				return nil
			}
			return failPayment(tx, &p, now)
		})
		if err != nil {
			logger.Error("reap checkout failed", zap.String("payment_id", candidate.ID), zap.Error(err))
			continue
		}
		if p.Status != db.PaymentFailed {
			continue
		}
		reaped++
		if p.TransactionID != nil {
			if err := s.Checkout.ExpireCheckoutSession(ctx, *p.TransactionID); err != nil {
				logger.Warn("expire abandoned session failed", zap.String("session_id", *p.TransactionID), zap.Error(err))
			}
		}
		s.publish(ctx, EventPaymentFailed, paymentEvent(&p))
	}
	if reaped > 0 {
		logger.Info("abandoned checkouts reaped", zap.Int("count", reaped))
	}
	return reaped, nil
}
