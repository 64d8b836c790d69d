package jobs

import (
	"context"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"mentor-marketplace/internal/admin"
	"mentor-marketplace/internal/logger"
	"mentor-marketplace/internal/services"
	"time"
)

const jobTimeout = 5 * time.Minute

// Scheduler owns the periodic maintenance jobs. Each job is single-flight.
type Scheduler struct {
	Sweeper            *services.Sweeper
	Health             *services.HealthChecker
	Backups            *admin.Backups
	ExpiringNoticeDays int

	cron *cron.Cron
}

type job struct {
	spec string
	name string
	fn   func(ctx context.Context) error
}

// cronLogger routes robfig/cron output through zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

func (s *Scheduler) Start() error {
	l := cronLogger{}
	s.cron = cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))

	jobs := []job{
		{"@every 1m", "expire_subscriptions", s.expireSubscriptions},
		{"@every 10m", "expire_stale_bookings", s.expireStaleBookings},
		{"@every 15m", "reap_abandoned_checkouts", s.reapCheckouts},
		{"0 10 * * *", "notify_expiring", s.notifyExpiring},
	}
	if s.Health != nil {
		jobs = append(jobs, job{"@every 1m", "health", func(ctx context.Context) error { s.Health.UpdateAll(ctx); return nil }})
	}
	if s.Backups != nil && s.Backups.DSN != "" {
		jobs = append(jobs, job{"0 3 * * *", "auto_backup", func(ctx context.Context) error { s.Backups.AutoBackup(ctx); return nil }})
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, wrap(j.name, j.fn)); err != nil {
			return err
		}
	}
	s.cron.Start()
	logger.Info("scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func wrap(name string, fn func(ctx context.Context) error) func() {
	return func() {
		defer logger.NotifyOnPanic("job " + name)
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			logger.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		logger.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

func (s *Scheduler) expireSubscriptions(ctx context.Context) error {
	_, err := s.Sweeper.ExpireSubscriptions(ctx)
	return err
}

func (s *Scheduler) expireStaleBookings(ctx context.Context) error {
	_, err := s.Sweeper.ExpireStaleBookings(ctx)
	return err
}

func (s *Scheduler) reapCheckouts(ctx context.Context) error {
	_, err := s.Sweeper.ReapAbandonedCheckouts(ctx)
	return err
}

func (s *Scheduler) notifyExpiring(ctx context.Context) error {
	days := s.ExpiringNoticeDays
	if days <= 0 {
		days = 3
	}
	_, err := s.Sweeper.NotifyExpiringSubscriptions(ctx, days)
	return err
}
