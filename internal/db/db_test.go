package db

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"mentor-marketplace/config"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(conn))
	return conn
}

func TestSeedPlansIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	plans := []config.PlanSeed{
		{Name: "Monthly Premium", Price: 1000, DurationDays: 30},
		{Name: "Yearly Premium", Price: 10000, DurationDays: 365},
	}
	n, err := SeedPlans(conn, plans)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = SeedPlans(conn, plans)
	require.NoError(t, err)

	var count int64
	conn.Model(&SubscriptionPlan{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestBaseAssignsUUID(t *testing.T) {
	conn := openTestDB(t)
	u := User{Email: "a@example.com", PasswordHash: "x", Role: RoleUser}
	require.NoError(t, conn.Create(&u).Error)
	assert.Len(t, u.ID, 36)
}

func TestSumPaymentsCountsOnlySuccess(t *testing.T) {
	conn := openTestDB(t)
	now := time.Now()
	require.NoError(t, conn.Create(&Payment{UserID: "u1", Amount: 100, Purpose: PurposeBooking, Status: PaymentSuccess}).Error)
	require.NoError(t, conn.Create(&Payment{UserID: "u1", Amount: 50, Purpose: PurposeBooking, Status: PaymentPending}).Error)
	require.NoError(t, conn.Create(&Payment{UserID: "u2", Amount: 25, Purpose: PurposeSubscription, Status: PaymentSuccess}).Error)

	assert.EqualValues(t, 125, SumPayments(conn, now.Add(-time.Hour), now.Add(time.Hour)))
	assert.EqualValues(t, 0, SumPayments(conn, now.Add(time.Hour), now.Add(2*time.Hour)))
}
