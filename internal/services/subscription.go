package services

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/logger"
	"time"
)

// Subscription audit actions.
const (
	ActionActivatedByWebhook = "ACTIVATED_BY_WEBHOOK"
	ActionActivatedManually  = "ACTIVATED"
	ActionCancelled          = "CANCELLED"
	ActionExpired            = "SUBSCRIPTION_EXPIRED"
	ActionCheckoutAbandoned  = "CHECKOUT_ABANDONED"
)

type SubscriptionCheckout struct {
	PaymentURL     string `json:"paymentUrl"`
	SessionID      string `json:"sessionId"`
	SubscriptionID string `json:"subscriptionId"`
	PaymentID      string `json:"paymentId"`
}

type SubscriptionService struct {
	*Deps
}

func NewSubscriptionService(d *Deps) *SubscriptionService {
	return &SubscriptionService{Deps: d}
}

func (s *SubscriptionService) ListPlans(ctx context.Context) ([]db.SubscriptionPlan, error) {
	var plans []db.SubscriptionPlan
	err := s.DB.WithContext(ctx).Order("price asc").Find(&plans).Error
	return plans, err
}

// Create opens a provisional subscription and payment and returns the checkout link.
// A still-pending checkout of the same user is superseded.
func (s *SubscriptionService) Create(ctx context.Context, userID, planID string) (out *SubscriptionCheckout, err error) {
	ctx, span := tracer.Start(ctx, "subscription.create")
	defer func() { endSpan(span, err) }()

	now := s.now()
	conn := s.DB.WithContext(ctx)
	var user db.User
	if err := conn.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if userPremiumValid(&user, now) {
		return nil, ErrAlreadyPremium
	}
	var plan db.SubscriptionPlan
	if err := conn.First(&plan, "id = ?", planID).Error; err != nil {
		return nil, notFoundOr(err, "subscription plan")
	}

	var (
		sub        db.Subscription
		payment    db.Payment
		superseded []string
	)
	err = conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&db.User{}, "id = ?", userID).Error; err != nil {
			return err
		}
		var err error
		if superseded, err = abandonPendingSubscriptions(tx, userID, now); err != nil {
			return err
		}
		sub = db.Subscription{UserID: userID, PlanID: plan.ID, Status: db.SubscriptionPending}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		payment = db.Payment{
			UserID:         userID,
			Amount:         plan.Price,
			Currency:       s.Settings.Currency,
			Purpose:        db.PurposeSubscription,
			Status:         db.PaymentPending,
			SubscriptionID: &sub.ID,
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, fmt.Errorf("open subscription: %w", err)
	}
	for _, id := range superseded {
		if err := s.Checkout.ExpireCheckoutSession(ctx, id); err != nil {
			logger.Warn("expire superseded session failed", zap.String("session_id", id), zap.Error(err))
		}
	}

	meta := SubscriptionMetadata{
		PaymentID:      payment.ID,
		SubscriptionID: sub.ID,
		UserID:         userID,
		PlanID:         plan.ID,
		DurationDays:   plan.DurationDays,
	}
	req := CheckoutRequest{
		CustomerEmail: user.Email,
		ProductName:   plan.Name,
		Description:   plan.Description,
		Currency:      payment.Currency,
		UnitAmount:    MinorUnits(plan.Price),
		SuccessURL:    s.Settings.SuccessURL + "/payment-success",
		CancelURL:     s.Settings.CancelURL + "/payment-cancel",
		Metadata:      meta.Encode(),
	}
	sess, err := openCheckout(ctx, s.Deps, req, &payment, func(tx *gorm.DB) error {
		return tx.Delete(&db.Subscription{}, "id = ?", sub.ID).Error
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Model(&db.Subscription{}).Where("id = ?", sub.ID).Update("transaction_id", sess.ID).Error; err != nil {
		logger.Error("store subscription transaction id failed", zap.String("subscription_id", sub.ID), zap.Error(err))
	}
	logger.Info("subscription checkout opened",
		zap.String("subscription_id", sub.ID), zap.String("payment_id", payment.ID), zap.String("session_id", sess.ID))
	return &SubscriptionCheckout{
		PaymentURL:     sess.URL,
		SessionID:      sess.ID,
		SubscriptionID: sub.ID,
		PaymentID:      payment.ID,
	}, nil
}

// Activate confirms the subscription behind a checkout session out of band.
func (s *SubscriptionService) Activate(ctx context.Context, transactionID string) (*db.Subscription, error) {
	now := s.now()
	var sub db.Subscription
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "transaction_id = ?", transactionID).Error; err != nil {
			return notFoundOr(err, "subscription")
		}
		var plan db.SubscriptionPlan
		if err := tx.First(&plan, "id = ?", sub.PlanID).Error; err != nil {
			return notFoundOr(err, "subscription plan")
		}
		if err := activateSubscription(tx, &sub, &plan, now, ActionActivatedManually); err != nil {
			return err
		}
		return tx.Model(&db.Payment{}).
			Where("transaction_id = ? AND status <> ?", transactionID, db.PaymentSuccess).
			Update("status", db.PaymentSuccess).Error
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Cancel ends a subscription and revokes premium in the same transaction.
func (s *SubscriptionService) Cancel(ctx context.Context, actor Actor, subscriptionID string) (*db.Subscription, error) {
	now := s.now()
	var (
		sub      db.Subscription
		sessions []string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "id = ?", subscriptionID).Error; err != nil {
			return notFoundOr(err, "subscription")
		}
		if sub.UserID != actor.ID && !actor.IsAdmin() {
			return Forbidden("you cannot cancel this subscription")
		}
		if sub.Status != db.SubscriptionActive && sub.Status != db.SubscriptionPending {
			return Conflict("subscription is already %s", sub.Status)
		}
		var pays []db.Payment
		if err := tx.Where("subscription_id = ? AND status = ?", sub.ID, db.PaymentPending).Find(&pays).Error; err != nil {
			return err
		}
		for _, p := range pays {
			if err := tx.Model(&db.Payment{}).Where("id = ?", p.ID).Update("status", db.PaymentFailed).Error; err != nil {
				return err
			}
			if p.TransactionID != nil {
				sessions = append(sessions, *p.TransactionID)
			}
		}
		sub.Status = db.SubscriptionCancelled
		if err := tx.Model(&db.Subscription{}).Where("id = ?", sub.ID).Update("status", db.SubscriptionCancelled).Error; err != nil {
			return err
		}
		if err := revokePremium(tx, sub.UserID); err != nil {
			return err
		}
		return writeSubscriptionLog(tx, sub.UserID, sub.ID, ActionCancelled, now)
	})
	if err != nil {
		return nil, err
	}
	for _, id := range sessions {
		if err := s.Checkout.ExpireCheckoutSession(ctx, id); err != nil {
			logger.Warn("expire checkout session failed", zap.String("session_id", id), zap.Error(err))
		}
	}
	s.publish(ctx, EventSubscriptionCancelled, subscriptionEvent(&sub))
	return &sub, nil
}

func (s *SubscriptionService) ListMine(ctx context.Context, userID string) ([]db.Subscription, error) {
	var subs []db.Subscription
	err := s.DB.WithContext(ctx).Preload("Plan").Where("user_id = ?", userID).Order("created_at desc").Find(&subs).Error
	return subs, err
}

func (s *SubscriptionService) Get(ctx context.Context, actor Actor, id string) (*db.Subscription, error) {
	var sub db.Subscription
	if err := s.DB.WithContext(ctx).Preload("Plan").First(&sub, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "subscription")
	}
	if sub.UserID != actor.ID && !actor.IsAdmin() {
		return nil, Forbidden("you cannot view this subscription")
	}
	return &sub, nil
}

// activateSubscription applies the extension rule: the new period starts at the
// later of now and the user's current premium end. An ACTIVE subscription is left alone.
func activateSubscription(tx *gorm.DB, sub *db.Subscription, plan *db.SubscriptionPlan, now time.Time, action string) error {
	if sub.Status == db.SubscriptionActive {
		return nil
	}
	var user db.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", sub.UserID).Error; err != nil {
		return notFoundOr(err, "user")
	}
	base := now
	if userPremiumValid(&user, now) && user.PremiumExpires.After(base) {
		base = *user.PremiumExpires
	}
	var other db.Subscription
	err := tx.Where("user_id = ? AND status = ? AND id <> ? AND expires_at IS NOT NULL", user.ID, db.SubscriptionActive, sub.ID).
		Order("expires_at desc").First(&other).Error
	switch {
	case err == nil:
		if other.ExpiresAt.After(base) {
			base = *other.ExpiresAt
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	expires := base.AddDate(0, 0, plan.DurationDays)
	started := now

	if err := tx.Model(&db.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
		"status":     db.SubscriptionActive,
		"started_at": started,
		"expires_at": expires,
	}).Error; err != nil {
		return err
	}
	sub.Status = db.SubscriptionActive
	sub.StartedAt = &started
	sub.ExpiresAt = &expires

	if err := tx.Model(&db.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"is_premium":      true,
		"premium_expires": expires,
	}).Error; err != nil {
		return err
	}
	if err := tx.Model(&db.User{}).Where("id = ? AND role = ?", user.ID, db.RoleUser).
		Update("role", db.RolePremiumUser).Error; err != nil {
		return err
	}
	return writeSubscriptionLog(tx, user.ID, sub.ID, action, now)
}

// revokePremium clears the premium flag and expiry together. Paying users fall back to USER.
func revokePremium(tx *gorm.DB, userID string) error {
	if err := tx.Model(&db.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"is_premium":      false,
		"premium_expires": nil,
	}).Error; err != nil {
		return err
	}
	return tx.Model(&db.User{}).Where("id = ? AND role = ?", userID, db.RolePremiumUser).
		Update("role", db.RoleUser).Error
}

// abandonPendingSubscriptions cancels open subscription checkouts of a user and
// returns their session ids.
func abandonPendingSubscriptions(tx *gorm.DB, userID string, now time.Time) ([]string, error) {
	var subs []db.Subscription
	if err := tx.Where("user_id = ? AND status = ?", userID, db.SubscriptionPending).Find(&subs).Error; err != nil {
		return nil, err
	}
	var sessions []string
	for _, sub := range subs {
		if err := tx.Model(&db.Subscription{}).Where("id = ?", sub.ID).Update("status", db.SubscriptionCancelled).Error; err != nil {
			return nil, err
		}
		if err := tx.Model(&db.Payment{}).
			Where("subscription_id = ? AND status = ?", sub.ID, db.PaymentPending).
			Update("status", db.PaymentFailed).Error; err != nil {
			return nil, err
		}
		if err := writeSubscriptionLog(tx, userID, sub.ID, ActionCheckoutAbandoned, now); err != nil {
			return nil, err
		}
		if sub.TransactionID != nil {
			sessions = append(sessions, *sub.TransactionID)
		}
	}
	return sessions, nil
}

func writeSubscriptionLog(tx *gorm.DB, userID, subscriptionID, action string, at time.Time) error {
	return tx.Create(&db.SubscriptionLog{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Action:         action,
		Timestamp:      at,
	}).Error
}

type SubscriptionEvent struct {
	SubscriptionID string     `json:"subscriptionId"`
	UserID         string     `json:"userId"`
	PlanID         string     `json:"planId"`
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

func subscriptionEvent(sub *db.Subscription) SubscriptionEvent {
	return SubscriptionEvent{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		Status:         sub.Status,
		ExpiresAt:      sub.ExpiresAt,
	}
}
