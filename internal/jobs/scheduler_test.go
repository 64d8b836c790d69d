package jobs

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mentor-marketplace/internal/admin"
	"mentor-marketplace/internal/services"
	"mentor-marketplace/internal/testutil"
	"testing"
)

func TestStartRegistersJobs(t *testing.T) {
	env := testutil.NewEnv(t)
	tests := []struct {
		desc    string
		health  *services.HealthChecker
		backups *admin.Backups
		want    int
	}{
		{"sweeps only", nil, nil, 4},
		{"with health", services.NewHealthChecker(), nil, 5},
		{"backups without dsn", nil, admin.NewBackups("", t.TempDir()), 4},
		{"everything", services.NewHealthChecker(), admin.NewBackups("postgres://db/app", t.TempDir()), 6},
	}
	for _, tt := range tests {
		s := &Scheduler{Sweeper: services.NewSweeper(env.Deps), Health: tt.health, Backups: tt.backups}
		require.NoError(t, s.Start(), tt.desc)
		assert.Len(t, s.cron.Entries(), tt.want, tt.desc)
		s.Stop()
	}
}

func TestWrapRecoversAndPassesDeadline(t *testing.T) {
	var sawDeadline bool
	wrap("deadline", func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	})()
	assert.True(t, sawDeadline)

	assert.NotPanics(t, wrap("boom", func(context.Context) error { panic("boom") }))
	assert.NotPanics(t, wrap("fails", func(context.Context) error { return errors.New("db down") }))
}

func TestSweepJobsRunAgainstDatabase(t *testing.T) {
	env := testutil.NewEnv(t)
	s := &Scheduler{Sweeper: services.NewSweeper(env.Deps)}
	ctx := context.Background()
	for _, fn := range []func(context.Context) error{s.expireSubscriptions, s.expireStaleBookings, s.reapCheckouts, s.notifyExpiring} {
		assert.NoError(t, fn(ctx))
	}
}
