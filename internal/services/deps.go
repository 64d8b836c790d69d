package services

import (
	"context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"mentor-marketplace/config"
	"time"
)

var tracer = otel.Tracer("mentor-marketplace/services")

// Settings are the business knobs shared by the services.
type Settings struct {
	FreeBookingLimit      int
	FreeMentorActiveLimit int
	FallbackHourlyRate    int
	Currency              string
	SuccessURL            string
	CancelURL             string
	CheckoutAbandonAfter  time.Duration
	ExpiringNoticeDays    int
}

func DefaultSettings() Settings {
	return Settings{
		FreeBookingLimit:      3,
		FreeMentorActiveLimit: 10,
		FallbackHourlyRate:    200,
		Currency:              "usd",
		SuccessURL:            "http://localhost:3000",
		CancelURL:             "http://localhost:3000",
		CheckoutAbandonAfter:  25 * time.Hour,
		ExpiringNoticeDays:    3,
	}
}

func SettingsFromConfig(c config.AppConfig) Settings {
	return Settings{
		FreeBookingLimit:      c.FreeBookingLimit,
		FreeMentorActiveLimit: c.FreeMentorActiveLimit,
		FallbackHourlyRate:    c.FallbackHourlyRate,
		Currency:              c.Currency,
		SuccessURL:            c.SuccessURL,
		CancelURL:             c.CancelURL,
		CheckoutAbandonAfter:  c.CheckoutAbandonAfter,
		ExpiringNoticeDays:    c.ExpiringNoticeDays,
	}
}

// Deps is what every service needs. Zero Events and Now get defaults.
type Deps struct {
	DB       *gorm.DB
	Checkout CheckoutProvider
	Events   Publisher
	Now      func() time.Time
	Settings Settings
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) publish(ctx context.Context, key string, v interface{}) {
	if d.Events == nil {
		return
	}
	publishEvent(ctx, d.Events, key, v)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
