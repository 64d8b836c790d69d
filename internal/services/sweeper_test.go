package services_test

import (
	"context"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/services"
	"mentor-marketplace/internal/testutil"
	"testing"
	"time"
)

func activeSubscription(t *testing.T, env *testutil.Env, user db.User, plan db.SubscriptionPlan, expires time.Time) db.Subscription {
	t.Helper()
	started := env.Clock.Now()
	sub := db.Subscription{UserID: user.ID, PlanID: plan.ID, Status: db.SubscriptionActive, StartedAt: &started, ExpiresAt: &expires}
	require.NoError(t, env.DB.Create(&sub).Error)
	return sub
}

func TestExpireSubscriptionsRevokesPremium(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	expires := now.AddDate(0, 0, 5)
	user := env.User(t, "user@example.com", testutil.WithRole(db.RolePremiumUser), testutil.PremiumUntil(expires))
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	sub := activeSubscription(t, env, user, plan, expires)
	sweeper := services.NewSweeper(env.Deps)

	n, err := sweeper.ExpireSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Clock.Advance(6 * 24 * time.Hour)
	n, err = sweeper.ExpireSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, db.SubscriptionExpired, testutil.Reload[db.Subscription](t, env.DB, sub.ID).Status)
	u := testutil.Reload[db.User](t, env.DB, user.ID)
	assert.False(t, u.IsPremium)
	assert.Nil(t, u.PremiumExpires)
	assert.Equal(t, db.RoleUser, u.Role)
	assert.Contains(t, env.Events.Published(), services.EventSubscriptionExpired)
}

func TestExpireSubscriptionsKeepsLaterPeriod(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	later := now.AddDate(0, 0, 40)
	user := env.User(t, "user@example.com", testutil.WithRole(db.RolePremiumUser), testutil.PremiumUntil(later))
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	activeSubscription(t, env, user, plan, now.Add(-time.Hour))
	activeSubscription(t, env, user, plan, later)

	n, err := services.NewSweeper(env.Deps).ExpireSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	u := testutil.Reload[db.User](t, env.DB, user.ID)
	assert.True(t, u.IsPremium)
	assert.Equal(t, db.RolePremiumUser, u.Role)
}

func TestExpireSubscriptionsRevokesLapsedMentor(t *testing.T) {
	env := testutil.NewEnv(t)
	mentor := env.Mentor(t, "mentor@example.com", env.Clock.Now().Add(-time.Minute))

	_, err := services.NewSweeper(env.Deps).ExpireSubscriptions(context.Background())
	require.NoError(t, err)

	u := testutil.Reload[db.User](t, env.DB, mentor.ID)
	assert.False(t, u.IsPremium)
	assert.Equal(t, db.RoleMentor, u.Role)
}

func TestReapAbandonedCheckouts(t *testing.T) {
	env := testutil.NewEnv(t)
	res, _ := paidBooking(t, env)
	sweeper := services.NewSweeper(env.Deps)
	ctx := context.Background()

	n, err := sweeper.ReapAbandonedCheckouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Clock.Advance(26 * time.Hour)
	n, err = sweeper.ReapAbandonedCheckouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, db.PaymentFailed, testutil.Reload[db.Payment](t, env.DB, res.PaymentID).Status)
	assert.Equal(t, db.BookingCancelled, testutil.Reload[db.Booking](t, env.DB, res.Booking.ID).Status)
	assert.Contains(t, env.Checkout.Expired, res.SessionID)

	n, err = sweeper.ReapAbandonedCheckouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireStaleBookings(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	mentor := env.Mentor(t, "mentor@example.com", now.AddDate(0, 0, 30))
	mentee := env.User(t, "mentee@example.com")
	skill := env.Skill(t, mentor.ID, nil)

	stale := db.Booking{MenteeID: mentee.ID, MentorID: mentor.ID, SkillID: skill.ID, ScheduledAt: now.Add(-time.Hour), DurationMin: 60, Status: db.BookingPending}
	paying := db.Booking{MenteeID: mentee.ID, MentorID: mentor.ID, SkillID: skill.ID, ScheduledAt: now.Add(-time.Hour), DurationMin: 60, Status: db.BookingPending}
	future := db.Booking{MenteeID: mentee.ID, MentorID: mentor.ID, SkillID: skill.ID, ScheduledAt: now.Add(time.Hour), DurationMin: 60, Status: db.BookingPending}
	for _, b := range []*db.Booking{&stale, &paying, &future} {
		require.NoError(t, env.DB.Create(b).Error)
	}
	require.NoError(t, env.DB.Create(&db.Payment{UserID: mentee.ID, Amount: 200, Currency: "usd",
		Purpose: db.PurposeBooking, Status: db.PaymentPending, BookingID: &paying.ID}).Error)

	n, err := services.NewSweeper(env.Deps).ExpireStaleBookings(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, db.BookingExpired, testutil.Reload[db.Booking](t, env.DB, stale.ID).Status)
	assert.Equal(t, db.BookingPending, testutil.Reload[db.Booking](t, env.DB, paying.ID).Status)
	assert.Equal(t, db.BookingPending, testutil.Reload[db.Booking](t, env.DB, future.ID).Status)
}

func TestExpireStaleBookingsQuery(t *testing.T) {
	conn, mock := testutil.MockDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sweeper := services.NewSweeper(&services.Deps{DB: conn, Now: func() time.Time { return now }})

	mock.ExpectExec(`UPDATE "bookings" SET "status"=\$1,"updated_at"=\$2 WHERE .*status = \$3 AND scheduled_at < \$4.* AND id NOT IN \(SELECT "booking_id" FROM "payments" WHERE status = \$5 AND booking_id IS NOT NULL\)`).
		WithArgs(db.BookingExpired, sqlmock.AnyArg(), db.BookingPending, sqlmock.AnyArg(), db.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := sweeper.ExpireStaleBookings(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyExpiringSubscriptionsOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	user := env.User(t, "user@example.com")
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	activeSubscription(t, env, user, plan, now.AddDate(0, 0, 2))
	activeSubscription(t, env, user, plan, now.AddDate(0, 0, 20))
	sweeper := services.NewSweeper(env.Deps)

	n, err := sweeper.NotifyExpiringSubscriptions(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sweeper.NotifyExpiringSubscriptions(context.Background(), 3)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{services.EventSubscriptionExpiring}, env.Events.Published())
}
