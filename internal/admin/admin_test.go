package admin

import (
	"context"
	"encoding/json"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/httpx"
	"mentor-marketplace/internal/services"
	"mentor-marketplace/internal/testutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCollectStats(t *testing.T) {
	env := testutil.NewEnv(t)
	now := env.Clock.Now()
	env.Mentor(t, "mentor@example.com", now.AddDate(0, 0, 30))
	user := env.User(t, "user@example.com")
	env.User(t, "vip@example.com", testutil.WithRole(db.RolePremiumUser), testutil.PremiumUntil(now.AddDate(0, 0, 3)))
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	require.NoError(t, env.DB.Create(&db.Subscription{UserID: user.ID, PlanID: plan.ID, Status: db.SubscriptionActive}).Error)

	pay := func(amount int, status string) {
		require.NoError(t, env.DB.Create(&db.Payment{UserID: user.ID, Amount: amount, Currency: "usd",
			Purpose: db.PurposeBooking, Status: status}).Error)
	}
	env.Clock.Advance(-40 * 24 * time.Hour)
	pay(500, db.PaymentSuccess)
	env.Clock.Advance(40 * 24 * time.Hour)
	pay(200, db.PaymentSuccess)
	pay(300, db.PaymentFailed)

	st := CollectStats(env.DB, now.Add(time.Minute))
	assert.EqualValues(t, 3, st.Users)
	assert.EqualValues(t, 1, st.Mentors)
	assert.EqualValues(t, 1, st.PremiumUsers)
	assert.EqualValues(t, 1, st.ActiveSubscriptions)
	assert.EqualValues(t, 3, st.NewUsers24h)
	assert.EqualValues(t, 200, st.RevenueToday)
	assert.EqualValues(t, 200, st.RevenueMonth)
	assert.EqualValues(t, 700, st.RevenueTotal)
}

func TestRestoreRejectsUnsafeNames(t *testing.T) {
	b := NewBackups("postgres://localhost/none", t.TempDir())
	for _, name := range []string{"", "../etc/passwd.dump", "dir/backup.dump", "backup.sql"} {
		err := b.Restore(context.Background(), name)
		assert.ErrorContains(t, err, "invalid backup name", name)
	}
}

func TestListAndCleanOld(t *testing.T) {
	dir := t.TempDir()
	b := NewBackups("", dir)
	write := func(name string, age time.Duration) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("dump"), 0o600))
		ts := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}
	write("backup_old.dump", 40*24*time.Hour)
	write("backup_new.dump", time.Hour)
	write("notes.txt", 40*24*time.Hour)

	files, err := b.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "backup_new.dump", files[0].Name)

	removed, err := b.CleanOld(31 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	files, err = b.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "backup_new.dump", files[0].Name)
}

func TestActivateSubscriptionRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := testutil.NewEnv(t)
	user := env.User(t, "user@example.com")
	plan := env.Plan(t, "Monthly Premium", 1000, 30)
	session := "cs_admin_1"
	sub := db.Subscription{UserID: user.ID, PlanID: plan.ID, Status: db.SubscriptionPending, TransactionID: &session}
	require.NoError(t, env.DB.Create(&sub).Error)
	pay := db.Payment{UserID: user.ID, Amount: plan.Price, Currency: "usd", Purpose: db.PurposeSubscription,
		Status: db.PaymentPending, TransactionID: &session, SubscriptionID: &sub.ID}
	require.NoError(t, env.DB.Create(&pay).Error)

	h := &Handlers{DB: env.DB, Subscriptions: services.NewSubscriptionService(env.Deps), Now: env.Clock.Now}
	r := gin.New()
	h.Register(r.Group("/admin", func(c *gin.Context) {
		c.Set(httpx.KeyUserID, "admin-1")
		c.Set(httpx.KeyRole, db.RoleAdmin)
	}))
	post := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		return w
	}

	w := post("/admin/subscriptions/activate/" + session)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Success bool            `json:"success"`
		Data    db.Subscription `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, db.SubscriptionActive, resp.Data.Status)
	assert.Equal(t, db.PaymentSuccess, testutil.Reload[db.Payment](t, env.DB, pay.ID).Status)
	assert.True(t, testutil.Reload[db.User](t, env.DB, user.ID).IsPremium)

	assert.Equal(t, http.StatusNotFound, post("/admin/subscriptions/activate/cs_unknown").Code)
}
