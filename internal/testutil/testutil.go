// Package testutil holds database fixtures and fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/services"
	"sync"
	"testing"
	"time"
)

// OpenDB returns a migrated in-memory sqlite database private to the test.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(conn))
	return conn
}

// MockDB returns a postgres-dialect gorm handle backed by sqlmock.
func MockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, DriverName: "postgres"}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return conn, mock
}

// FakeCheckout records checkout calls and hands out sequential session ids.
type FakeCheckout struct {
	mu        sync.Mutex
	n         int
	Requests  []services.CheckoutRequest
	Expired   []string
	CreateErr error
	ExpireErr error
}

func (f *FakeCheckout) CreateCheckoutSession(_ context.Context, req services.CheckoutRequest) (*services.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.n++
	id := fmt.Sprintf("cs_test_%d", f.n)
	return &services.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (f *FakeCheckout) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Expired = append(f.Expired, sessionID)
	return f.ExpireErr
}

// LastRequest returns the most recent checkout request.
func (f *FakeCheckout) LastRequest() services.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return services.CheckoutRequest{}
	}
	return f.Requests[len(f.Requests)-1]
}

// ErrProviderDown is a canned provider failure.
var ErrProviderDown = errors.New("stripe: connection refused")

// RecordingPublisher keeps every published routing key.
type RecordingPublisher struct {
	mu   sync.Mutex
	Keys []string
}

func (p *RecordingPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Keys = append(p.Keys, key)
	return nil
}

func (p *RecordingPublisher) Published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Keys...)
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Env bundles a database, fakes and the Deps wired to them.
type Env struct {
	DB       *gorm.DB
	Checkout *FakeCheckout
	Events   *RecordingPublisher
	Clock    *Clock
	Deps     *services.Deps
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	conn := OpenDB(t)
	e := &Env{
		DB:       conn,
		Checkout: &FakeCheckout{},
		Events:   &RecordingPublisher{},
		Clock:    NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	// Row timestamps follow the test clock.
	conn.Config.NowFunc = e.Clock.Now
	e.Deps = &services.Deps{
		DB:       conn,
		Checkout: e.Checkout,
		Events:   e.Events,
		Now:      e.Clock.Now,
		Settings: services.DefaultSettings(),
	}
	return e
}

// UserOpt tweaks a fixture user before insert.
type UserOpt func(*db.User)

func WithRole(role string) UserOpt { return func(u *db.User) { u.Role = role } }

// PremiumUntil marks the user premium with the given expiry.
func PremiumUntil(t time.Time) UserOpt {
	return func(u *db.User) {
		u.IsPremium = true
		u.PremiumExpires = &t
	}
}

func Blocked() UserOpt { return func(u *db.User) { u.Status = db.UserStatusBlocked } }

func (e *Env) User(t *testing.T, email string, opts ...UserOpt) db.User {
	t.Helper()
	u := db.User{
		Email:            email,
		PasswordHash:     "x",
		Name:             email,
		Role:             db.RoleUser,
		Status:           db.UserStatusActive,
		FreeBookingsLeft: e.Deps.Settings.FreeBookingLimit,
	}
	for _, o := range opts {
		o(&u)
	}
	require.NoError(t, e.DB.Create(&u).Error)
	require.NoError(t, e.DB.Create(&db.Profile{UserID: u.ID}).Error)
	return u
}

// Mentor creates a MENTOR whose premium runs until until.
func (e *Env) Mentor(t *testing.T, email string, until time.Time) db.User {
	return e.User(t, email, WithRole(db.RoleMentor), PremiumUntil(until))
}

func (e *Env) Skill(t *testing.T, ownerID string, pricePerHour *int) db.Skill {
	t.Helper()
	s := db.Skill{OwnerID: ownerID, Title: "Go", Category: "Backend", Level: db.LevelBeginner, PricePerHour: pricePerHour, IsPublished: true}
	require.NoError(t, e.DB.Create(&s).Error)
	return s
}

func (e *Env) Plan(t *testing.T, name string, price, days int) db.SubscriptionPlan {
	t.Helper()
	p := db.SubscriptionPlan{Name: name, Price: price, DurationDays: days}
	require.NoError(t, e.DB.Create(&p).Error)
	return p
}

// Reload reads a row back by id.
func Reload[T any](t *testing.T, conn *gorm.DB, id string) T {
	t.Helper()
	var v T
	require.NoError(t, conn.First(&v, "id = ?", id).Error)
	return v
}

func IntPtr(v int) *int { return &v }
