package services

import (
	"context"
	"errors"
	"fmt"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/logger"
	"time"
)

const minBookingMinutes = 15

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == db.RoleAdmin }

type CreateBookingInput struct {
	SkillID     string `json:"skillId" binding:"required"`
	MentorID    string `json:"mentorId"`
	ScheduledAt string `json:"scheduledAt" binding:"required"`
	DurationMin int    `json:"durationMin" binding:"required"`
}

type BookingResult struct {
	Booking         *db.Booking `json:"booking"`
	RequiresPayment bool        `json:"requiresPayment"`
	PaymentURL      string      `json:"paymentUrl,omitempty"`
	SessionID       string      `json:"sessionId,omitempty"`
	PaymentID       string      `json:"paymentId,omitempty"`
}

type BookingService struct {
	*Deps
}

func NewBookingService(d *Deps) *BookingService {
	return &BookingService{Deps: d}
}

// Create runs the admission check and either confirms a free booking or
// opens provisional rows plus a checkout session for a paid one.
func (s *BookingService) Create(ctx context.Context, requesterID string, in CreateBookingInput) (res *BookingResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer func() { endSpan(span, err) }()

	now := s.now()
	scheduledAt, err := time.Parse(time.RFC3339, in.ScheduledAt)
	if err != nil {
		return nil, Validation("scheduledAt must be an RFC3339 timestamp")
	}
	if !scheduledAt.After(now) {
		return nil, Validation("scheduledAt must be in the future")
	}
	if in.DurationMin < minBookingMinutes {
		return nil, Validation("durationMin must be at least %d", minBookingMinutes)
	}

	conn := s.DB.WithContext(ctx)
	var requester db.User
	if err := conn.First(&requester, "id = ?", requesterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if requester.Status == db.UserStatusBlocked {
		return nil, ErrUserBlocked
	}
	var skill db.Skill
	if err := conn.First(&skill, "id = ?", in.SkillID).Error; err != nil {
		return nil, notFoundOr(err, "skill")
	}
	if in.MentorID != "" && in.MentorID != skill.OwnerID {
		return nil, Validation("skill does not belong to the selected mentor")
	}
	if skill.OwnerID == requesterID {
		return nil, ErrSelfBooking
	}
	var mentor db.User
	if err := conn.First(&mentor, "id = ?", skill.OwnerID).Error; err != nil {
		return nil, notFoundOr(err, "mentor")
	}
	if !userPremiumValid(&mentor, now) {
		return nil, ErrMentorNotPremium
	}

	price := CalculatePrice(skill.PricePerHour, s.Settings.FallbackHourlyRate, in.DurationMin)
	requesterPremium := userPremiumValid(&requester, now)
	span.SetAttributes(
		attribute.String("booking.skill_id", skill.ID),
		attribute.Bool("booking.requester_premium", requesterPremium),
		attribute.Int("booking.price", price),
	)

	booking := db.Booking{
		MenteeID:    requesterID,
		MentorID:    mentor.ID,
		SkillID:     skill.ID,
		ScheduledAt: scheduledAt.UTC(),
		DurationMin: in.DurationMin,
	}
	var payment *db.Payment
	err = conn.Transaction(func(tx *gorm.DB) error {
		// Serialises concurrent admissions for the same requester.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&db.User{}, "id = ?", requesterID).Error; err != nil {
			return err
		}
		needsPayment := false
		if !requesterPremium {
			var active int64
			if err := tx.Model(&db.Booking{}).
				Where("mentee_id = ? AND status IN ?", requesterID, []string{db.BookingPending, db.BookingAccepted}).
				Count(&active).Error; err != nil {
				return err
			}
			needsPayment = int(active) >= s.Settings.FreeBookingLimit
			left := s.Settings.FreeBookingLimit - int(active)
			if !needsPayment {
				left--
			}
			if left < 0 {
				left = 0
			}
			if err := tx.Model(&db.User{}).Where("id = ?", requesterID).Update("free_bookings_left", left).Error; err != nil {
				return err
			}
		}
		if !needsPayment {
			booking.Status = db.BookingAccepted
			booking.PricePaid = 0
			return tx.Create(&booking).Error
		}
		booking.Status = db.BookingPending
		booking.PricePaid = price
		if err := tx.Create(&booking).Error; err != nil {
			return err
		}
		payment = &db.Payment{
			UserID:    requesterID,
			Amount:    price,
			Currency:  s.Settings.Currency,
			Purpose:   db.PurposeBooking,
			Status:    db.PaymentPending,
			BookingID: &booking.ID,
		}
		return tx.Create(payment).Error
	})
	if err != nil {
		return nil, fmt.Errorf("admit booking: %w", err)
	}

	res = &BookingResult{Booking: &booking, RequiresPayment: payment != nil}
	if payment == nil {
		logger.Info("free booking confirmed", zap.String("booking_id", booking.ID), zap.String("mentee_id", requesterID))
		s.publish(ctx, EventBookingCreated, bookingEvent(&booking))
		return res, nil
	}

	sess, err := s.openBookingCheckout(ctx, &requester, &mentor, &skill, &booking, payment)
	if err != nil {
		return nil, err
	}
	res.PaymentURL = sess.URL
	res.SessionID = sess.ID
	res.PaymentID = payment.ID
	logger.Info("paid booking awaiting checkout",
		zap.String("booking_id", booking.ID), zap.String("payment_id", payment.ID), zap.String("session_id", sess.ID))
	s.publish(ctx, EventBookingCreated, bookingEvent(&booking))
	return res, nil
}

func (s *BookingService) openBookingCheckout(ctx context.Context, mentee, mentor *db.User, skill *db.Skill, booking *db.Booking, payment *db.Payment) (*CheckoutSession, error) {
	meta := BookingMetadata{
		PaymentID:   payment.ID,
		BookingID:   booking.ID,
		MenteeID:    mentee.ID,
		MentorID:    mentor.ID,
		SkillID:     skill.ID,
		ScheduledAt: booking.ScheduledAt,
		DurationMin: booking.DurationMin,
		Price:       payment.Amount,
	}
	req := CheckoutRequest{
		CustomerEmail: mentee.Email,
		ProductName:   fmt.Sprintf("Mentorship session: %s", skill.Title),
		Description:   fmt.Sprintf("%d min with %s", booking.DurationMin, mentor.Name),
		Currency:      payment.Currency,
		UnitAmount:    MinorUnits(payment.Amount),
		SuccessURL:    s.Settings.SuccessURL + "/payment-success",
		CancelURL:     s.Settings.CancelURL + "/payment-cancel",
		Metadata:      meta.Encode(),
	}
	return openCheckout(ctx, s.Deps, req, payment, func(tx *gorm.DB) error {
		return tx.Delete(&db.Booking{}, "id = ?", booking.ID).Error
	})
}

// openCheckout calls the provider outside any transaction. On failure the
// payment row is deleted together with whatever compensate removes.
func openCheckout(ctx context.Context, d *Deps, req CheckoutRequest, payment *db.Payment, compensate func(tx *gorm.DB) error) (*CheckoutSession, error) {
	sess, err := d.Checkout.CreateCheckoutSession(ctx, req)
	if err == nil && (sess == nil || sess.ID == "") {
		err = errors.New("provider returned an empty session")
	}
	if err == nil {
		err = d.DB.WithContext(ctx).Model(&db.Payment{}).
			Where("id = ?", payment.ID).
			Update("transaction_id", sess.ID).Error
		if err == nil {
			id := sess.ID
			payment.TransactionID = &id
			return sess, nil
		}
		if expErr := d.Checkout.ExpireCheckoutSession(ctx, sess.ID); expErr != nil {
			logger.Warn("expire orphaned session failed", zap.String("session_id", sess.ID), zap.Error(expErr))
		}
	}

	logger.Error("checkout initiation failed", zap.String("payment_id", payment.ID), zap.Error(err))
	cerr := d.DB.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&db.Payment{}, "id = ?", payment.ID).Error; err != nil {
			return err
		}
		return compensate(tx)
	})
	if cerr != nil {
		logger.Error("compensating delete failed", zap.String("payment_id", payment.ID), zap.Error(cerr))
		logger.NotifyAdmin("compensating delete failed for payment " + payment.ID + ": " + cerr.Error())
	}
	return nil, &Error{Kind: KindExternal, Message: ErrPaymentInitiation.Message, Err: err}
}

type BookingListQuery struct {
	PageQuery
	Status string `form:"status"`
}

var bookingSortColumns = map[string]string{
	"createdAt":   "created_at",
	"scheduledAt": "scheduled_at",
}

func (s *BookingService) ListAsMentee(ctx context.Context, menteeID string, q BookingListQuery) (*Page[db.Booking], error) {
	return s.list(ctx, "mentee_id", menteeID, q)
}

func (s *BookingService) ListAsMentor(ctx context.Context, mentorID string, q BookingListQuery) (*Page[db.Booking], error) {
	return s.list(ctx, "mentor_id", mentorID, q)
}

func (s *BookingService) list(ctx context.Context, column, userID string, q BookingListQuery) (*Page[db.Booking], error) {
	q.PageQuery = q.PageQuery.normalized()
	query := s.DB.WithContext(ctx).Model(&db.Booking{}).
		Preload("Skill").Preload("Mentor").Preload("Mentee").
		Where(column+" = ?", userID)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	return paginate[db.Booking](query, q.PageQuery, q.order(bookingSortColumns, "created_at"))
}

func (s *BookingService) Get(ctx context.Context, actor Actor, id string) (*db.Booking, error) {
	var b db.Booking
	if err := s.DB.WithContext(ctx).Preload("Skill").Preload("Mentor").Preload("Mentee").First(&b, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "booking")
	}
	if !actor.IsAdmin() && b.MenteeID != actor.ID && b.MentorID != actor.ID {
		return nil, Forbidden("you are not a party to this booking")
	}
	return &b, nil
}

var mentorTransitions = map[string][]string{
	db.BookingPending:  {db.BookingAccepted, db.BookingCancelled},
	db.BookingAccepted: {db.BookingCompleted, db.BookingCancelled},
}

func transitionAllowed(from, to string) bool {
	for _, s := range mentorTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves a booking on behalf of its mentor.
func (s *BookingService) UpdateStatus(ctx context.Context, mentorID, bookingID, status string) (*db.Booking, error) {
	now := s.now()
	var (
		b              db.Booking
		failedSessions []string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, "id = ?", bookingID).Error; err != nil {
			return notFoundOr(err, "booking")
		}
		if b.MentorID != mentorID {
			return Forbidden("only the booked mentor can update this booking")
		}
		if !transitionAllowed(b.Status, status) {
			return ErrInvalidTransition
		}
		if status == db.BookingAccepted {
			var pending int64
			if err := tx.Model(&db.Payment{}).
				Where("booking_id = ? AND status = ?", b.ID, db.PaymentPending).
				Count(&pending).Error; err != nil {
				return err
			}
			if pending > 0 {
				return ErrPaymentOutstanding
			}
			var mentor db.User
			if err := tx.First(&mentor, "id = ?", mentorID).Error; err != nil {
				return err
			}
			if !userPremiumValid(&mentor, now) {
				var accepted int64
				if err := tx.Model(&db.Booking{}).
					Where("mentor_id = ? AND status = ? AND id <> ?", mentorID, db.BookingAccepted, b.ID).
					Count(&accepted).Error; err != nil {
					return err
				}
				if int(accepted) >= s.Settings.FreeMentorActiveLimit {
					return ErrMentorLimitReached
				}
			}
		}
		if status == db.BookingCancelled {
			var err error
			if failedSessions, err = failPendingBookingPayments(tx, b.ID); err != nil {
				return err
			}
		}
		b.Status = status
		return tx.Model(&db.Booking{}).Where("id = ?", b.ID).Update("status", status).Error
	})
	if err != nil {
		return nil, err
	}
	s.expireSessions(ctx, failedSessions)
	s.publish(ctx, EventBookingStatusChanged, bookingEvent(&b))
	return &b, nil
}

// Cancel lets the mentee withdraw a pending or accepted booking.
func (s *BookingService) Cancel(ctx context.Context, menteeID, bookingID string) (*db.Booking, error) {
	var (
		b              db.Booking
		failedSessions []string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, "id = ?", bookingID).Error; err != nil {
			return notFoundOr(err, "booking")
		}
		if b.MenteeID != menteeID {
			return Forbidden("only the mentee can cancel this booking")
		}
		if b.Status != db.BookingPending && b.Status != db.BookingAccepted {
			return ErrInvalidTransition
		}
		var err error
		if failedSessions, err = failPendingBookingPayments(tx, b.ID); err != nil {
			return err
		}
		b.Status = db.BookingCancelled
		return tx.Model(&db.Booking{}).Where("id = ?", b.ID).Update("status", db.BookingCancelled).Error
	})
	if err != nil {
		return nil, err
	}
	s.expireSessions(ctx, failedSessions)
	s.publish(ctx, EventBookingStatusChanged, bookingEvent(&b))
	return &b, nil
}

// failPendingBookingPayments marks open payments of a booking FAILED and
// returns their checkout sessions.
func failPendingBookingPayments(tx *gorm.DB, bookingID string) ([]string, error) {
	var pays []db.Payment
	if err := tx.Where("booking_id = ? AND status = ?", bookingID, db.PaymentPending).Find(&pays).Error; err != nil {
		return nil, err
	}
	var sessions []string
	for _, p := range pays {
		if err := tx.Model(&db.Payment{}).Where("id = ?", p.ID).Update("status", db.PaymentFailed).Error; err != nil {
			return nil, err
		}
		if p.TransactionID != nil {
			sessions = append(sessions, *p.TransactionID)
		}
	}
	return sessions, nil
}

func (s *BookingService) expireSessions(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := s.Checkout.ExpireCheckoutSession(ctx, id); err != nil {
			logger.Warn("expire checkout session failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}

type BookingEvent struct {
	BookingID   string    `json:"bookingId"`
	MenteeID    string    `json:"menteeId"`
	MentorID    string    `json:"mentorId"`
	SkillID     string    `json:"skillId"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduledAt"`
	PricePaid   int       `json:"pricePaid"`
}

func bookingEvent(b *db.Booking) BookingEvent {
	return BookingEvent{
		BookingID:   b.ID,
		MenteeID:    b.MenteeID,
		MentorID:    b.MentorID,
		SkillID:     b.SkillID,
		Status:      b.Status,
		ScheduledAt: b.ScheduledAt,
		PricePaid:   b.PricePaid,
	}
}
