package services

import (
	"context"
	"go.uber.org/zap"
	"mentor-marketplace/internal/logger"
	"time"
)

// Routing keys published to the event exchange.
const (
	EventBookingCreated        = "booking.created"
	EventBookingConfirmed      = "booking.confirmed"
	EventBookingStatusChanged  = "booking.status_changed"
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionExpiring  = "subscription.expiring"
	EventSubscriptionExpired   = "subscription.expired"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventChatMessage           = "chat.message"
)

// Publisher delivers domain events to the broker.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishJSON(context.Context, string, any) error { return nil }

// Events are best effort: a broker outage never fails the request.
func publishEvent(ctx context.Context, p Publisher, key string, v interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := p.PublishJSON(ctx, key, v); err != nil {
		logger.Warn("event publish failed", zap.String("key", key), zap.Error(err))
	}
}
