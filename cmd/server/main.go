package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"mentor-marketplace/config"
	"mentor-marketplace/internal/admin"
	"mentor-marketplace/internal/api"
	"mentor-marketplace/internal/auth"
	"mentor-marketplace/internal/bot"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/jobs"
	"mentor-marketplace/internal/logger"
	"mentor-marketplace/internal/mq"
	"mentor-marketplace/internal/obs"
	"mentor-marketplace/internal/services"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	root := &cobra.Command{
		Use:           "marketplace",
		Short:         "Mentorship marketplace backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Init(config.AppCfg.IsDevelopment()); err != nil {
				return err
			}
			if err := logger.InitNotifier(config.AppCfg.BotToken, config.AppCfg.AdminTelegramID); err != nil {
				logger.Warn("admin notifier disabled", zap.Error(err))
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedPlansCmd(), sweepCmd(), backupCmd(), restoreCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook receiver and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg := config.AppCfg
	shutdownTracer, err := obs.InitTracer(ctx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	if err := db.InitDB(); err != nil {
		return err
	}
	if err := seedPlans(); err != nil {
		return err
	}

	health := services.NewHealthChecker()
	health.Register("database", func(context.Context) error { return db.Ping(db.DB) })

	var events services.Publisher = services.NopPublisher{}
	if cfg.AMQPURL != "" {
		pub, err := mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			defer pub.Close()
			events = pub
			health.Register("rabbitmq", pub.Ping)
		}
	}

	var avatars services.AvatarStore
	if cld, err := services.NewCloudinaryStore(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret); err != nil {
		logger.Info("avatar uploads disabled", zap.Error(err))
	} else {
		avatars = cld
		health.Register("cloudinary", cld.Ping)
	}

	deps := &services.Deps{
		DB:       db.DB,
		Checkout: services.NewStripeCheckout(cfg.StripeSecretKey),
		Events:   events,
		Settings: services.SettingsFromConfig(cfg),
	}
	tokens := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	payments := services.NewPaymentService(deps)
	subscriptions := services.NewSubscriptionService(deps)
	backups := admin.NewBackups(cfg.DatabaseURL, cfg.BackupDir)

	srv := &api.Server{
		Auth:          services.NewAuthService(deps, tokens),
		Users:         services.NewUserService(deps),
		Mentors:       services.NewMentorService(deps),
		Skills:        services.NewSkillService(deps),
		Bookings:      services.NewBookingService(deps),
		Subscriptions: subscriptions,
		Payments:      payments,
		Reviews:       services.NewReviewService(deps),
		Chat:          services.NewChatService(deps),
		Dashboard:     services.NewDashboardService(deps),
		Reconciler:    services.NewReconciler(deps),
		Health:        health,
		Admin:         &admin.Handlers{DB: db.DB, Payments: payments, Subscriptions: subscriptions, Backups: backups},
		Avatars:       avatars,
		Tokens:        tokens,
		WebhookSecret: cfg.StripeWebhookSecret,
		CORSOrigins:   cfg.CORSOrigins,
		CookieSecure:  cfg.CookieSecure,
	}

	sched := &jobs.Scheduler{
		Sweeper:            services.NewSweeper(deps),
		Health:             health,
		Backups:            backups,
		ExpiringNoticeDays: cfg.ExpiringNoticeDays,
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()
	health.UpdateAll(ctx)

	if tg := logger.Bot(); tg != nil {
		console := &bot.Console{
			API:     tg,
			AdminID: cfg.AdminTelegramID,
			DB:      db.DB,
			Users:   srv.Users,
			Health:  health,
			Backups: backups,
		}
		go console.Run(ctx)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.InitDB(); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func seedPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-plans",
		Short: "Insert the subscription plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.InitDB(); err != nil {
				return err
			}
			return seedPlans()
		},
	}
}

func seedPlans() error {
	plans, err := config.LoadPlans()
	if err != nil {
		return err
	}
	n, err := db.SeedPlans(db.DB, plans)
	if err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}
	if n > 0 {
		logger.Info("subscription plans seeded", zap.Int64("count", n))
	}
	return nil
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the expiry and reaper jobs once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.InitDB(); err != nil {
				return err
			}
			cfg := config.AppCfg
			sweeper := services.NewSweeper(&services.Deps{
				DB:       db.DB,
				Checkout: services.NewStripeCheckout(cfg.StripeSecretKey),
				Events:   services.NopPublisher{},
				Settings: services.SettingsFromConfig(cfg),
			})
			ctx := cmd.Context()
			subs, err := sweeper.ExpireSubscriptions(ctx)
			if err != nil {
				return err
			}
			bookings, err := sweeper.ExpireStaleBookings(ctx)
			if err != nil {
				return err
			}
			reaped, err := sweeper.ReapAbandonedCheckouts(ctx)
			if err != nil {
				return err
			}
			logger.Info("sweep finished",
				zap.Int("subscriptions_expired", subs),
				zap.Int64("bookings_expired", bookings),
				zap.Int("checkouts_reaped", reaped))
			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump the database into the backup directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := admin.NewBackups(config.AppCfg.DatabaseURL, config.AppCfg.BackupDir)
			file, err := b.Dump(cmd.Context(), "backup")
			if err != nil {
				return err
			}
			fmt.Println(file)
			return nil
		},
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [file]",
		Short: "Restore the database from a dump in the backup directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := admin.NewBackups(config.AppCfg.DatabaseURL, config.AppCfg.BackupDir)
			if err := b.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.Info("database restored", zap.String("file", args[0]))
			return nil
		},
	}
}
