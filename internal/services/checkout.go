package services

import (
	"context"
	"strconv"
	"time"
)

// CheckoutRequest describes one hosted checkout for a single line item.
type CheckoutRequest struct {
	CustomerEmail string
	ProductName   string
	Description   string
	Currency      string
	UnitAmount    int64
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutProvider is the external payment provider.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

// Metadata keys carried on the checkout session.
const (
	MetaPurpose        = "purpose"
	MetaPaymentID      = "paymentId"
	MetaBookingID      = "bookingId"
	MetaMenteeID       = "menteeId"
	MetaMentorID       = "mentorId"
	MetaSkillID        = "skillId"
	MetaScheduledAt    = "scheduledAt"
	MetaDurationMin    = "durationMin"
	MetaPrice          = "price"
	MetaSubscriptionID = "subscriptionId"
	MetaUserID         = "userId"
	MetaPlanID         = "planId"
	MetaDurationDays   = "durationDays"
)

// BookingMetadata is the booking-purpose payload of a checkout session.
type BookingMetadata struct {
	PaymentID   string
	BookingID   string
	MenteeID    string
	MentorID    string
	SkillID     string
	ScheduledAt time.Time
	DurationMin int
	Price       int
}

func (m BookingMetadata) Encode() map[string]string {
	return map[string]string{
		MetaPurpose:     "booking",
		MetaPaymentID:   m.PaymentID,
		MetaBookingID:   m.BookingID,
		MetaMenteeID:    m.MenteeID,
		MetaMentorID:    m.MentorID,
		MetaSkillID:     m.SkillID,
		MetaScheduledAt: m.ScheduledAt.UTC().Format(time.RFC3339),
		MetaDurationMin: strconv.Itoa(m.DurationMin),
		MetaPrice:       strconv.Itoa(m.Price),
	}
}

func DecodeBookingMetadata(md map[string]string) (BookingMetadata, error) {
	m := BookingMetadata{
		PaymentID: md[MetaPaymentID],
		BookingID: md[MetaBookingID],
		MenteeID:  md[MetaMenteeID],
		MentorID:  md[MetaMentorID],
		SkillID:   md[MetaSkillID],
	}
	var err error
	if v := md[MetaScheduledAt]; v != "" {
		if m.ScheduledAt, err = time.Parse(time.RFC3339, v); err != nil {
			return m, Validation("invalid scheduledAt metadata")
		}
	}
	if v := md[MetaDurationMin]; v != "" {
		if m.DurationMin, err = strconv.Atoi(v); err != nil {
			return m, Validation("invalid durationMin metadata")
		}
	}
	if v := md[MetaPrice]; v != "" {
		if m.Price, err = strconv.Atoi(v); err != nil {
			return m, Validation("invalid price metadata")
		}
	}
	return m, nil
}

// SubscriptionMetadata is the subscription-purpose payload of a checkout session.
type SubscriptionMetadata struct {
	PaymentID      string
	SubscriptionID string
	UserID         string
	PlanID         string
	DurationDays   int
}

func (m SubscriptionMetadata) Encode() map[string]string {
	return map[string]string{
		MetaPurpose:        "subscription",
		MetaPaymentID:      m.PaymentID,
		MetaSubscriptionID: m.SubscriptionID,
		MetaUserID:         m.UserID,
		MetaPlanID:         m.PlanID,
		MetaDurationDays:   strconv.Itoa(m.DurationDays),
	}
}

func DecodeSubscriptionMetadata(md map[string]string) (SubscriptionMetadata, error) {
	m := SubscriptionMetadata{
		PaymentID:      md[MetaPaymentID],
		SubscriptionID: md[MetaSubscriptionID],
		UserID:         md[MetaUserID],
		PlanID:         md[MetaPlanID],
	}
	if v := md[MetaDurationDays]; v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return m, Validation("invalid durationDays metadata")
		}
		m.DurationDays = d
	}
	return m, nil
}
