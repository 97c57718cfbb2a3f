package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/platecraft/platecraft/internal"
	"github.com/platecraft/platecraft/internal/billing"
	"github.com/platecraft/platecraft/internal/domain"
	"github.com/platecraft/platecraft/internal/email"
	"github.com/platecraft/platecraft/internal/handler/api"
	"github.com/platecraft/platecraft/internal/handler/webhook"
	"github.com/platecraft/platecraft/internal/idempotency"
	"github.com/platecraft/platecraft/internal/middleware"
	"github.com/platecraft/platecraft/internal/postgres"
	"github.com/platecraft/platecraft/internal/router"
	"github.com/platecraft/platecraft/internal/routes"
	"github.com/platecraft/platecraft/internal/service"
	"github.com/platecraft/platecraft/internal/telemetry"
	"github.com/platecraft/platecraft/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	sentryCleanup, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Enabled:     cfg.Sentry.Enabled,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
		Debug:       cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	defer sentryCleanup()

	telemetry.InitBusinessMetrics("platecraft")

	// Migrations run through database/sql; the pgx pool handles everything else.
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := internal.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	db.Close()
	logger.Info("database migrations complete")

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	profileStore := postgres.NewProfileStore(pool)
	tokenStore := postgres.NewTokenStore(pool)

	var guard idempotency.Guard
	if cfg.RedisURL != "" {
		redisGuard, err := idempotency.NewRedisGuard(cfg.RedisURL, idempotency.DefaultTTL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisGuard.Close()
		guard = redisGuard
		logger.Info("webhook dedup guard using redis")
	} else {
		guard = postgres.NewEventGuard(pool, idempotency.DefaultTTL)
		logger.Info("webhook dedup guard using postgres")
	}

	var provider billing.Provider
	if cfg.Stripe.SecretKey != "" {
		stripeProvider, err := billing.NewStripeProvider(billing.StripeConfig{
			APIKey:        cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			ProPriceID:    cfg.Stripe.ProPriceID,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize stripe: %w", err)
		}
		provider = stripeProvider
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, billing operations are disabled")
		provider = billing.NewDisabledProvider()
	}

	var mailer service.LifecycleMailer
	if cfg.Email.Host != "" {
		sender, err := email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     int(cfg.Email.Port),
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize smtp sender: %w", err)
		}
		mailer = email.NewLifecycleMailer(sender, cfg.Email.From, cfg.BaseURL, logger)
	} else {
		logger.Warn("SMTP_HOST not set, lifecycle emails are disabled")
	}

	subscriptionService, err := service.NewSubscriptionService(profileStore, guard, provider, mailer, service.Config{
		ProPriceID:      cfg.Stripe.ProPriceID,
		SuccessURL:      cfg.BaseURL + "/account/billing?checkout=success",
		CancelURL:       cfg.BaseURL + "/account/billing?checkout=canceled",
		PortalReturnURL: cfg.BaseURL + "/account/billing",
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create subscription service: %w", err)
	}

	stripeWebhook := webhook.NewStripeHandler(provider, subscriptionService, webhook.StripeWebhookConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, logger)
	subscriptionHandler := api.NewSubscriptionHandler(subscriptionService, logger)
	sweepHandler := api.NewSweepHandler(subscriptionService, logger)

	metrics := middleware.NewMetrics("platecraft")

	r := router.New(
		router.Recovery(logger),
		middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()),
		telemetry.SentryMiddleware(),
		middleware.RequestID,
		middleware.WithRequestLogger(logger),
		metrics.Middleware,
		middleware.MaxBodySize(middleware.SmallMaxBodySize),
		middleware.Timeout(),
		router.Logger(logger),
	)

	r.Handle(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	routes.RegisterWebhookRoutes(r, routes.WebhookDeps{
		StripeHandler: stripeWebhook.HandleWebhook,
	})
	routes.RegisterAPIRoutes(r, routes.APIDeps{
		SubscriptionHandler: subscriptionHandler,
		SweepHandler:        sweepHandler,
		RequireToken:        middleware.RequireToken(tokenStore),
		RequireOpsScope:     middleware.RequireScope(domain.ScopeOps),
		RateLimit:           middleware.RateLimit(middleware.DefaultRateLimiterConfig()),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maintenance := worker.NewWorker(subscriptionService, guard, worker.Config{
		SweepInterval:       cfg.Sweep.Interval,
		MarkerSweepInterval: cfg.Sweep.MarkerInterval,
	}, logger)
	go func() {
		if err := maintenance.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("maintenance worker stopped", slog.Any("error", err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("server listening", slog.Int("port", int(cfg.Port)), slog.String("env", cfg.Env))

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
