package services

import (
	"context"
	"errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/logger"
	"time"
)

// CheckoutEvent is a verified provider notification about one checkout session.
type CheckoutEvent struct {
	EventID         string
	EventType       string
	SessionID       string
	PaymentIntentID string
	Metadata        map[string]string
	Raw             []byte
}

// Outcome reports what a reconciliation changed.
type Outcome struct {
	Duplicate    bool
	NoOp         bool
	Payment      *db.Payment
	Booking      *db.Booking
	Subscription *db.Subscription
}

// Reconciler finalizes provisional records from provider notifications.
// Every entry point is idempotent.
type Reconciler struct {
	*Deps
}

func NewReconciler(d *Deps) *Reconciler {
	return &Reconciler{Deps: d}
}

// CheckoutCompleted confirms the payment and the booking or subscription it paid for.
func (r *Reconciler) CheckoutCompleted(ctx context.Context, ev CheckoutEvent) (out *Outcome, err error) {
	ctx, span := tracer.Start(ctx, "reconcile.checkout_completed")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("stripe.event_id", ev.EventID), attribute.String("stripe.session_id", ev.SessionID))

	now := r.now()
	out = &Outcome{}
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := recordEvent(tx, ev, now)
		if err != nil || !fresh {
			out.Duplicate = !fresh
			return err
		}
		payment, err := lockPayment(tx, ev.Metadata[MetaPaymentID], ev.SessionID)
		if err != nil {
			return err
		}
		out.Payment = payment
		if payment.Status == db.PaymentSuccess {
			out.NoOp = true
			return nil
		}

		purpose := payment.Purpose
		if purpose == "" {
			purpose = ev.Metadata[MetaPurpose]
		}
		switch purpose {
		case db.PurposeBooking:
			b, err := confirmBooking(tx, payment, ev)
			if err != nil {
				return err
			}
			out.Booking = b
		case db.PurposeSubscription:
			sub, err := confirmSubscription(tx, payment, ev, now)
			if err != nil {
				return err
			}
			out.Subscription = sub
		default:
			return Validation("unknown payment purpose %q", purpose)
		}

		updates := map[string]interface{}{
			"status":              db.PaymentSuccess,
			"provider_payment_id": ev.PaymentIntentID,
		}
		if len(ev.Raw) > 0 {
			updates["raw_response"] = datatypes.JSON(ev.Raw)
		}
		if payment.TransactionID == nil && ev.SessionID != "" {
			updates["transaction_id"] = ev.SessionID
		}
		if out.Booking != nil && payment.BookingID == nil {
			updates["booking_id"] = out.Booking.ID
		}
		if out.Subscription != nil && payment.SubscriptionID == nil {
			updates["subscription_id"] = out.Subscription.ID
		}
		if err := tx.Model(&db.Payment{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
			return err
		}
		payment.Status = db.PaymentSuccess
		payment.ProviderPaymentID = ev.PaymentIntentID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Duplicate || out.NoOp {
		logger.Info("checkout completion already applied",
			zap.String("event_id", ev.EventID), zap.String("session_id", ev.SessionID))
		return out, nil
	}

	logger.Info("checkout completed",
		zap.String("event_id", ev.EventID), zap.String("payment_id", out.Payment.ID), zap.String("purpose", out.Payment.Purpose))
	r.publish(ctx, EventPaymentSucceeded, paymentEvent(out.Payment))
	if out.Booking != nil {
		r.publish(ctx, EventBookingConfirmed, bookingEvent(out.Booking))
	}
	if out.Subscription != nil {
		r.publish(ctx, EventSubscriptionActivated, subscriptionEvent(out.Subscription))
	}
	return out, nil
}

// CheckoutExpired fails the payment of an abandoned session and cancels what it reserved.
func (r *Reconciler) CheckoutExpired(ctx context.Context, ev CheckoutEvent) (out *Outcome, err error) {
	ctx, span := tracer.Start(ctx, "reconcile.checkout_expired")
	defer func() { endSpan(span, err) }()

	now := r.now()
	out = &Outcome{}
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := recordEvent(tx, ev, now)
		if err != nil || !fresh {
			out.Duplicate = !fresh
			return err
		}
		payment, err := lockPayment(tx, ev.Metadata[MetaPaymentID], ev.SessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) || KindOf(err) == KindNotFound {
				out.NoOp = true
				return nil
			}
			return err
		}
		out.Payment = payment
		if payment.Status != db.PaymentPending {
			out.NoOp = true
			return nil
		}
		return failPayment(tx, payment, now)
	})
	if err != nil {
		return nil, err
	}
	if !out.Duplicate && !out.NoOp {
		logger.Info("checkout expired", zap.String("payment_id", out.Payment.ID))
		r.publish(ctx, EventPaymentFailed, paymentEvent(out.Payment))
	}
	return out, nil
}

// recordEvent inserts the event id into the ledger. It reports false when the
// event was already applied.
func recordEvent(tx *gorm.DB, ev CheckoutEvent, now time.Time) (bool, error) {
	if ev.EventID == "" {
		return true, nil
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.WebhookEvent{
		ID:          ev.EventID,
		Type:        ev.EventType,
		ProcessedAt: now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// lockPayment finds the payment by id, then by checkout session id.
func lockPayment(tx *gorm.DB, paymentID, sessionID string) (*db.Payment, error) {
	if paymentID == "" && sessionID == "" {
		return nil, Validation("missing paymentId metadata")
	}
	var p db.Payment
	if paymentID != "" {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", paymentID).Error
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if sessionID != "" {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "transaction_id = ?", sessionID).Error
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, NotFound("payment")
}

func confirmBooking(tx *gorm.DB, payment *db.Payment, ev CheckoutEvent) (*db.Booking, error) {
	meta, err := DecodeBookingMetadata(ev.Metadata)
	if err != nil {
		return nil, err
	}
	price := meta.Price
	if price <= 0 {
		price = payment.Amount
	}
	bookingID := meta.BookingID
	if bookingID == "" && payment.BookingID != nil {
		bookingID = *payment.BookingID
	}

	var b db.Booking
	found := false
	if bookingID != "" {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, "id = ?", bookingID).Error
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	tupleComplete := meta.MenteeID != "" && meta.MentorID != "" && meta.SkillID != "" &&
		!meta.ScheduledAt.IsZero() && meta.DurationMin > 0
	if !found && tupleComplete {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("mentee_id = ? AND mentor_id = ? AND skill_id = ? AND scheduled_at = ? AND duration_min = ?",
				meta.MenteeID, meta.MentorID, meta.SkillID, meta.ScheduledAt.UTC(), meta.DurationMin).
			Order("created_at desc").First(&b).Error
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}

	if !found {
		if !tupleComplete {
			return nil, Validation("booking metadata incomplete")
		}
		b = db.Booking{
			MenteeID:    meta.MenteeID,
			MentorID:    meta.MentorID,
			SkillID:     meta.SkillID,
			ScheduledAt: meta.ScheduledAt.UTC(),
			DurationMin: meta.DurationMin,
			PricePaid:   price,
			Status:      db.BookingAccepted,
		}
		if err := tx.Create(&b).Error; err != nil {
			return nil, err
		}
		logger.Warn("provisional booking missing, recreated from metadata",
			zap.String("booking_id", b.ID), zap.String("payment_id", payment.ID))
		return &b, nil
	}

	if b.Status == db.BookingAccepted || b.Status == db.BookingCompleted {
		return &b, nil
	}
	if err := tx.Model(&db.Booking{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
		"status":     db.BookingAccepted,
		"price_paid": price,
	}).Error; err != nil {
		return nil, err
	}
	b.Status = db.BookingAccepted
	b.PricePaid = price
	return &b, nil
}

func confirmSubscription(tx *gorm.DB, payment *db.Payment, ev CheckoutEvent, now time.Time) (*db.Subscription, error) {
	meta, err := DecodeSubscriptionMetadata(ev.Metadata)
	if err != nil {
		return nil, err
	}
	subID := meta.SubscriptionID
	if subID == "" && payment.SubscriptionID != nil {
		subID = *payment.SubscriptionID
	}

	var sub db.Subscription
	found := false
	if subID != "" {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "id = ?", subID).Error
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	if !found && ev.SessionID != "" {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "transaction_id = ?", ev.SessionID).Error
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	if !found {
		userID := meta.UserID
		if userID == "" {
			userID = payment.UserID
		}
		if meta.PlanID == "" {
			return nil, Validation("subscription metadata incomplete")
		}
		sub = db.Subscription{UserID: userID, PlanID: meta.PlanID, Status: db.SubscriptionPending}
		if ev.SessionID != "" {
			id := ev.SessionID
			sub.TransactionID = &id
		}
		if err := tx.Create(&sub).Error; err != nil {
			return nil, err
		}
		logger.Warn("provisional subscription missing, recreated from metadata",
			zap.String("subscription_id", sub.ID), zap.String("payment_id", payment.ID))
	}

	var plan db.SubscriptionPlan
	if err := tx.First(&plan, "id = ?", sub.PlanID).Error; err != nil {
		return nil, notFoundOr(err, "subscription plan")
	}
	if err := activateSubscription(tx, &sub, &plan, now, ActionActivatedByWebhook); err != nil {
		return nil, err
	}
	return &sub, nil
}

// failPayment marks a pending payment FAILED and cancels its provisional rows.
func failPayment(tx *gorm.DB, payment *db.Payment, now time.Time) error {
	if err := tx.Model(&db.Payment{}).Where("id = ? AND status = ?", payment.ID, db.PaymentPending).
		Update("status", db.PaymentFailed).Error; err != nil {
		return err
	}
	payment.Status = db.PaymentFailed
	if payment.BookingID != nil {
		if err := tx.Model(&db.Booking{}).Where("id = ? AND status = ?", *payment.BookingID, db.BookingPending).
			Update("status", db.BookingCancelled).Error; err != nil {
			return err
		}
	}
	if payment.SubscriptionID != nil {
		res := tx.Model(&db.Subscription{}).Where("id = ? AND status = ?", *payment.SubscriptionID, db.SubscriptionPending).
			Update("status", db.SubscriptionCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return writeSubscriptionLog(tx, payment.UserID, *payment.SubscriptionID, ActionCheckoutAbandoned, now)
		}
	}
	return nil
}

type PaymentEvent struct {
	PaymentID string `json:"paymentId"`
	UserID    string `json:"userId"`
	Purpose   string `json:"purpose"`
	Amount    int    `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

func paymentEvent(p *db.Payment) PaymentEvent {
	return PaymentEvent{
		PaymentID: p.ID,
		UserID:    p.UserID,
		Purpose:   p.Purpose,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
	}
}
