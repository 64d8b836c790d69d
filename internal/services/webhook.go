package services

import (
	"encoding/json"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"io"
	"mentor-marketplace/internal/logger"
	"net/http"
)

const maxWebhookBodyBytes = int64(65536)

// verifyStripeEvent checks the Stripe-Signature header before anything is decoded.
func verifyStripeEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func checkoutEventFrom(event stripe.Event) (CheckoutEvent, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return CheckoutEvent{}, err
	}
	ev := CheckoutEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		SessionID: cs.ID,
		Metadata:  cs.Metadata,
		Raw:       event.Data.Raw,
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]string{}
	}
	if cs.PaymentIntent != nil {
		ev.PaymentIntentID = cs.PaymentIntent.ID
	}
	return ev, nil
}

// WebhookHandler receives Stripe notifications. Bad signatures get 400,
// processing failures 500 so Stripe redelivers.
func WebhookHandler(secret string, rec *Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer logger.NotifyOnPanic("WebhookHandler")
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				logger.Warn("webhook body too large", zap.Int64("limit", tooLarge.Limit))
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}
			logger.Warn("webhook body read failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not read request body"})
			return
		}
		event, err := verifyStripeEvent(payload, c.GetHeader("Stripe-Signature"), secret)
		if err != nil {
			logger.Warn("webhook signature rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "webhook signature verification failed"})
			return
		}

		var process func(CheckoutEvent) (*Outcome, error)
		switch event.Type {
		case stripe.EventTypeCheckoutSessionCompleted:
			process = func(ev CheckoutEvent) (*Outcome, error) { return rec.CheckoutCompleted(c.Request.Context(), ev) }
		case stripe.EventTypeCheckoutSessionExpired:
			process = func(ev CheckoutEvent) (*Outcome, error) { return rec.CheckoutExpired(c.Request.Context(), ev) }
		default:
			logger.Debug("webhook event ignored", zap.String("type", string(event.Type)))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		ev, err := checkoutEventFrom(event)
		if err != nil {
			logger.Error("webhook payload decode failed", zap.String("event_id", event.ID), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid checkout session payload"})
			return
		}
		if _, err := process(ev); err != nil {
			logger.Error("webhook processing failed",
				zap.String("event_id", event.ID), zap.String("type", string(event.Type)), zap.Error(err))
			logger.NotifyAdmin("Stripe webhook " + event.ID + " failed: " + err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
