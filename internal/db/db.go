package db

import (
	"fmt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"mentor-marketplace/config"
	"mentor-marketplace/internal/logger"
	"time"
)

var DB *gorm.DB

// Open connects to Postgres with the zap backed gorm logger.
func Open(dsn string, level gormlogger.LogLevel) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Gorm(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return conn, nil
}

// InitDB opens the configured database into DB and migrates it.
func InitDB() error {
	level := gormlogger.Warn
	if config.AppCfg.IsDevelopment() {
		level = gormlogger.Info
	}
	conn, err := Open(config.AppCfg.DatabaseURL, level)
	if err != nil {
		return err
	}
	DB = conn
	return Migrate(DB)
}

func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&User{}, &Profile{}, &Skill{}, &Booking{}, &Payment{},
		&SubscriptionPlan{}, &Subscription{}, &SubscriptionLog{},
		&Review{}, &Conversation{}, &Message{}, &WebhookEvent{},
	)
}

// SeedPlans inserts catalog plans, leaving existing names untouched.
func SeedPlans(conn *gorm.DB, plans []config.PlanSeed) (int64, error) {
	if len(plans) == 0 {
		return 0, nil
	}
	rows := make([]SubscriptionPlan, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, SubscriptionPlan{
			Name:         p.Name,
			Price:        p.Price,
			DurationDays: p.DurationDays,
			Description:  p.Description,
		})
	}
	res := conn.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).Create(&rows)
	return res.RowsAffected, res.Error
}

// Ping checks the database connection.
func Ping(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
