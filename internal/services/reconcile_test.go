package services_test

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/services"
	"mentor-marketplace/internal/testutil"
	"testing"
	"time"
)

// paidBooking opens a paid booking and returns the result plus the checkout metadata.
func paidBooking(t *testing.T, env *testutil.Env) (*services.BookingResult, map[string]string) {
	t.Helper()
	env.Deps.Settings.FreeBookingLimit = 0
	now := env.Clock.Now()
	mentor := env.Mentor(t, "mentor@example.com", now.AddDate(0, 0, 30))
	mentee := env.User(t, "mentee@example.com")
	skill := env.Skill(t, mentor.ID, testutil.IntPtr(100))
	res, err := services.NewBookingService(env.Deps).Create(context.Background(), mentee.ID, bookingInput(skill, now.Add(48*time.Hour), 60))
	require.NoError(t, err)
	require.True(t, res.RequiresPayment)
	return res, env.Checkout.LastRequest().Metadata
}

func completedEvent(id, session string, md map[string]string) services.CheckoutEvent {
	return services.CheckoutEvent{
		EventID:         id,
		EventType:       "checkout.session.completed",
		SessionID:       session,
		PaymentIntentID: "pi_" + id,
		Metadata:        md,
		Raw:             []byte(`{"id":"` + session + `"}`),
	}
}

func TestCheckoutCompletedConfirmsBooking(t *testing.T) {
	env := testutil.NewEnv(t)
	res, md := paidBooking(t, env)
	rec := services.NewReconciler(env.Deps)
	before := len(env.Events.Published())

	out, err := rec.CheckoutCompleted(context.Background(), completedEvent("evt_1", res.SessionID, md))
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.False(t, out.NoOp)
	require.NotNil(t, out.Booking)
	assert.Equal(t, res.Booking.ID, out.Booking.ID)

	b := testutil.Reload[db.Booking](t, env.DB, res.Booking.ID)
	assert.Equal(t, db.BookingAccepted, b.Status)
	assert.Equal(t, 100, b.PricePaid)

	p := testutil.Reload[db.Payment](t, env.DB, res.PaymentID)
	assert.Equal(t, db.PaymentSuccess, p.Status)
	assert.Equal(t, "pi_evt_1", p.ProviderPaymentID)
	assert.NotEmpty(t, p.RawResponse)

	assert.Equal(t, []string{services.EventPaymentSucceeded, services.EventBookingConfirmed}, env.Events.Published()[before:])
}

func TestCheckoutCompletedIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	res, md := paidBooking(t, env)
	rec := services.NewReconciler(env.Deps)
	ctx := context.Background()

	_, err := rec.CheckoutCompleted(ctx, completedEvent("evt_1", res.SessionID, md))
	require.NoError(t, err)
	published := len(env.Events.Published())

	// Same event redelivered.
	out, err := rec.CheckoutCompleted(ctx, completedEvent("evt_1", res.SessionID, md))
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	// Distinct event for the same session.
	out, err = rec.CheckoutCompleted(ctx, completedEvent("evt_2", res.SessionID, md))
	require.NoError(t, err)
	assert.True(t, out.NoOp)

	var bookings, successes int64
	env.DB.Model(&db.Booking{}).Count(&bookings)
	env.DB.Model(&db.Payment{}).Where("status = ?", db.PaymentSuccess).Count(&successes)
	assert.EqualValues(t, 1, bookings)
	assert.EqualValues(t, 1, successes)
	assert.Len(t, env.Events.Published(), published)
}

func TestCheckoutCompletedRecreatesMissingBooking(t *testing.T) {
	env := testutil.NewEnv(t)
	res, md := paidBooking(t, env)
	require.NoError(t, env.DB.Delete(&db.Booking{}, "id = ?", res.Booking.ID).Error)

	out, err := services.NewReconciler(env.Deps).CheckoutCompleted(context.Background(), completedEvent("evt_1", res.SessionID, md))
	require.NoError(t, err)
	require.NotNil(t, out.Booking)
	assert.NotEqual(t, res.Booking.ID, out.Booking.ID)
	assert.Equal(t, db.BookingAccepted, out.Booking.Status)
	assert.Equal(t, 100, out.Booking.PricePaid)

	p := testutil.Reload[db.Payment](t, env.DB, res.PaymentID)
	assert.Equal(t, db.PaymentSuccess, p.Status)
}

func TestCheckoutCompletedFindsPaymentBySession(t *testing.T) {
	env := testutil.NewEnv(t)
	res, md := paidBooking(t, env)
	delete(md, services.MetaPaymentID)

	out, err := services.NewReconciler(env.Deps).CheckoutCompleted(context.Background(), completedEvent("evt_1", res.SessionID, md))
	require.NoError(t, err)
	assert.Equal(t, res.PaymentID, out.Payment.ID)
}

func TestCheckoutCompletedUnknownPayment(t *testing.T) {
	env := testutil.NewEnv(t)
	rec := services.NewReconciler(env.Deps)

	_, err := rec.CheckoutCompleted(context.Background(), completedEvent("evt_x", "cs_unknown", map[string]string{
		services.MetaPurpose: "booking", services.MetaPaymentID: "nope",
	}))
	assert.Equal(t, services.KindNotFound, services.KindOf(err))

	// The ledger entry rolls back with the failed attempt so a redelivery is processed again.
	var n int64
	env.DB.Model(&db.WebhookEvent{}).Count(&n)
	assert.Zero(t, n)
}

func TestCheckoutExpiredFailsPayment(t *testing.T) {
	env := testutil.NewEnv(t)
	res, md := paidBooking(t, env)
	rec := services.NewReconciler(env.Deps)
	ev := completedEvent("evt_exp", res.SessionID, md)
	ev.EventType = "checkout.session.expired"

	out, err := rec.CheckoutExpired(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, out.NoOp)

	assert.Equal(t, db.PaymentFailed, testutil.Reload[db.Payment](t, env.DB, res.PaymentID).Status)
	assert.Equal(t, db.BookingCancelled, testutil.Reload[db.Booking](t, env.DB, res.Booking.ID).Status)

	// Redelivery is recognised by event id.
	out, err = rec.CheckoutExpired(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
}

func subscriptionFixture(t *testing.T, env *testutil.Env, user db.User, plan db.SubscriptionPlan, session string) (db.Subscription, db.Payment) {
	t.Helper()
	sub := db.Subscription{UserID: user.ID, PlanID: plan.ID, Status: db.SubscriptionPending, TransactionID: &session}
	require.NoError(t, env.DB.Create(&sub).Error)
	pay := db.Payment{
		UserID: user.ID, Amount: plan.Price, Currency: "usd", Purpose: db.PurposeSubscription,
		Status: db.PaymentPending, TransactionID: &session, SubscriptionID: &sub.ID,
	}
	require.NoError(t, env.DB.Create(&pay).Error)
	return sub, pay
}

func subscriptionMeta(sub db.Subscription, pay db.Payment, plan db.SubscriptionPlan) map[string]string {
	return services.SubscriptionMetadata{
		PaymentID:      pay.ID,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanID:         plan.ID,
		DurationDays:   plan.DurationDays,
	}.Encode()
}

func TestCheckoutCompletedActivatesSubscription(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	user := env.User(t, "user@example.com")
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	sub, pay := subscriptionFixture(t, env, user, plan, "cs_sub_1")

	out, err := services.NewReconciler(env.Deps).CheckoutCompleted(context.Background(),
		completedEvent("evt_s1", "cs_sub_1", subscriptionMeta(sub, pay, plan)))
	require.NoError(t, err)
	require.NotNil(t, out.Subscription)

	got := testutil.Reload[db.Subscription](t, env.DB, sub.ID)
	assert.Equal(t, db.SubscriptionActive, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, now.AddDate(0, 0, 30), *got.ExpiresAt, time.Second)

	u := testutil.Reload[db.User](t, env.DB, user.ID)
	assert.True(t, u.IsPremium)
	assert.Equal(t, db.RolePremiumUser, u.Role)
	require.NotNil(t, u.PremiumExpires)
	assert.WithinDuration(t, now.AddDate(0, 0, 30), *u.PremiumExpires, time.Second)

	var logs int64
	env.DB.Model(&db.SubscriptionLog{}).Where("subscription_id = ? AND action = ?", sub.ID, services.ActionActivatedByWebhook).Count(&logs)
	assert.EqualValues(t, 1, logs)
}

func TestSubscriptionExtendsRemainingPremium(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	user := env.User(t, "user@example.com", testutil.WithRole(db.RolePremiumUser), testutil.PremiumUntil(now.AddDate(0, 0, 10)))
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	sub, pay := subscriptionFixture(t, env, user, plan, "cs_sub_2")

	_, err := services.NewReconciler(env.Deps).CheckoutCompleted(context.Background(),
		completedEvent("evt_s2", "cs_sub_2", subscriptionMeta(sub, pay, plan)))
	require.NoError(t, err)

	u := testutil.Reload[db.User](t, env.DB, user.ID)
	require.NotNil(t, u.PremiumExpires)
	assert.WithinDuration(t, now.AddDate(0, 0, 40), *u.PremiumExpires, time.Second)
}

func TestSubscriptionCreateAndCancel(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.User(t, "user@example.com")
	stranger := env.User(t, "stranger@example.com")
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	subs := services.NewSubscriptionService(env.Deps)
	ctx := context.Background()

	first, err := subs.Create(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 100000, env.Checkout.LastRequest().UnitAmount)

	// A second checkout supersedes the first.
	second, err := subs.Create(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.SubscriptionCancelled, testutil.Reload[db.Subscription](t, env.DB, first.SubscriptionID).Status)
	assert.Equal(t, db.PaymentFailed, testutil.Reload[db.Payment](t, env.DB, first.PaymentID).Status)
	assert.Contains(t, env.Checkout.Expired, first.SessionID)

	_, err = services.NewReconciler(env.Deps).CheckoutCompleted(ctx, services.CheckoutEvent{
		EventID: "evt_c", SessionID: second.SessionID, Metadata: env.Checkout.LastRequest().Metadata,
	})
	require.NoError(t, err)

	_, err = subs.Create(ctx, user.ID, plan.ID)
	assert.ErrorIs(t, err, services.ErrAlreadyPremium)

	_, err = subs.Cancel(ctx, services.Actor{ID: stranger.ID, Role: db.RoleUser}, second.SubscriptionID)
	assert.Equal(t, services.KindForbidden, services.KindOf(err))

	cancelled, err := subs.Cancel(ctx, services.Actor{ID: user.ID, Role: db.RolePremiumUser}, second.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, db.SubscriptionCancelled, cancelled.Status)

	u := testutil.Reload[db.User](t, env.DB, user.ID)
	assert.False(t, u.IsPremium)
	assert.Nil(t, u.PremiumExpires)
	assert.Equal(t, db.RoleUser, u.Role)
}

func TestSubscriptionCreateProviderFailure(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.User(t, "user@example.com")
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	env.Checkout.CreateErr = testutil.ErrProviderDown

	_, err := services.NewSubscriptionService(env.Deps).Create(context.Background(), user.ID, plan.ID)
	assert.ErrorIs(t, err, services.ErrPaymentInitiation)

	var subs, pays int64
	env.DB.Model(&db.Subscription{}).Count(&subs)
	env.DB.Model(&db.Payment{}).Count(&pays)
	assert.Zero(t, subs)
	assert.Zero(t, pays)
}

func TestSubscriptionConfirmationReplayKeepsExpiry(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.User(t, "user@example.com")
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	sub, pay := subscriptionFixture(t, env, user, plan, "cs_sub_replay")
	md := subscriptionMeta(sub, pay, plan)
	rec := services.NewReconciler(env.Deps)
	ctx := context.Background()

	_, err := rec.CheckoutCompleted(ctx, completedEvent("evt_r1", "cs_sub_replay", md))
	require.NoError(t, err)
	want := testutil.Reload[db.Subscription](t, env.DB, sub.ID).ExpiresAt
	require.NotNil(t, want)

	tests := []struct {
		desc    string
		eventID string
		reset   bool
	}{
		{"same event id", "evt_r1", false},
		{"new event id", "evt_r2", false},
		{"payment reset to pending", "evt_r3", true},
	}
	for _, tt := range tests {
		env.Clock.Advance(time.Hour)
		if tt.reset {
			require.NoError(t, env.DB.Model(&db.Payment{}).Where("id = ?", pay.ID).Update("status", db.PaymentPending).Error)
		}
		_, err := rec.CheckoutCompleted(ctx, completedEvent(tt.eventID, "cs_sub_replay", md))
		require.NoError(t, err, tt.desc)

		got := testutil.Reload[db.Subscription](t, env.DB, sub.ID)
		assert.Equal(t, db.SubscriptionActive, got.Status, tt.desc)
		require.NotNil(t, got.ExpiresAt, tt.desc)
		assert.True(t, want.Equal(*got.ExpiresAt), "%s: expires %v, want %v", tt.desc, got.ExpiresAt, want)

		u := testutil.Reload[db.User](t, env.DB, user.ID)
		require.NotNil(t, u.PremiumExpires, tt.desc)
		assert.True(t, want.Equal(*u.PremiumExpires), "%s: premium expires %v, want %v", tt.desc, u.PremiumExpires, want)
	}

	var logs int64
	env.DB.Model(&db.SubscriptionLog{}).Where("subscription_id = ?", sub.ID).Count(&logs)
	assert.EqualValues(t, 1, logs)
}

func TestSubscriptionActivateManually(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	user := env.User(t, "user@example.com")
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	sub, pay := subscriptionFixture(t, env, user, plan, "cs_sub_manual")
	subs := services.NewSubscriptionService(env.Deps)
	ctx := context.Background()

	got, err := subs.Activate(ctx, "cs_sub_manual")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, db.SubscriptionActive, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, now.AddDate(0, 0, 30), *got.ExpiresAt, time.Second)
	assert.Equal(t, db.PaymentSuccess, testutil.Reload[db.Payment](t, env.DB, pay.ID).Status)

	u := testutil.Reload[db.User](t, env.DB, user.ID)
	assert.True(t, u.IsPremium)
	assert.Equal(t, db.RolePremiumUser, u.Role)

	// Already ACTIVE: nothing moves.
	env.Clock.Advance(24 * time.Hour)
	again, err := subs.Activate(ctx, "cs_sub_manual")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(*again.ExpiresAt))
	reloaded := testutil.Reload[db.User](t, env.DB, user.ID)
	require.NotNil(t, reloaded.PremiumExpires)
	assert.True(t, got.ExpiresAt.Equal(*reloaded.PremiumExpires))

	var logs int64
	env.DB.Model(&db.SubscriptionLog{}).Where("subscription_id = ? AND action = ?", sub.ID, services.ActionActivatedManually).Count(&logs)
	assert.EqualValues(t, 1, logs)

	_, err = subs.Activate(ctx, "cs_missing")
	assert.Equal(t, services.KindNotFound, services.KindOf(err))
}
