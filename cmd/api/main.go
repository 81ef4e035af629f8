package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/salymed/salymed-backend/api/routes"
	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/internal/checkout"
	"github.com/salymed/salymed-backend/internal/paymentmethods"
	"github.com/salymed/salymed-backend/internal/plans"
	"github.com/salymed/salymed-backend/internal/subscriptions"
	paddlewebhook "github.com/salymed/salymed-backend/internal/webhooks/paddle"
	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/db"
	"github.com/salymed/salymed-backend/pkg/instance"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/metrics"
	"github.com/salymed/salymed-backend/pkg/migrate"
	"github.com/salymed/salymed-backend/pkg/outbox"
	"github.com/salymed/salymed-backend/pkg/paddle"
	"github.com/salymed/salymed-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Environment: cfg.App.Env,
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paddleClient, err := paddle.NewClient(context.Background(), cfg.Paddle, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paddle client", err)
		os.Exit(1)
	}
	if cfg.Paddle.SkipSignature {
		logg.Warn(context.Background(), "paddle webhook signature verification disabled")
	}
	verifier := paddle.NewVerifier(cfg.Paddle)

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)
	if err := dbClient.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "db pool metrics not registered")
	}
	billingRepo := billing.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	paymentMethods, err := paymentmethods.NewService(billingRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment method service", err)
		os.Exit(1)
	}

	activator, err := subscriptions.NewActivator(subscriptions.ActivatorParams{
		Repo:     billingRepo,
		Payments: paymentMethods,
		Outbox:   outboxService,
		Trial:    billing.TrialPolicyFrom(cfg.Billing),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription activator", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:     billingRepo,
		Gateway:  paddleClient,
		TxRunner: dbClient,
		Outbox:   outboxService,
		Logger:   logg,
		Billing:  cfg.Billing,
		Metrics:  billingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              billingRepo,
		Payments:          paymentMethods,
		Activator:         activator,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	planService, err := plans.NewService(billingRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	eventGuard, err := paddlewebhook.NewEventGuard(redisClient, cfg.Paddle.WebhookEventTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook event guard", err)
		os.Exit(1)
	}
	webhookService, err := paddlewebhook.NewService(paddlewebhook.ServiceParams{
		Repo:      billingRepo,
		Activator: activator,
		TxRunner:  dbClient,
		Audit:     paddlewebhook.NewAuditLog(dbClient.DB()),
		Guard:     eventGuard,
		Outbox:    outboxService,
		Logger:    logg,
		Billing:   cfg.Billing,
		Metrics:   billingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create paddle webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"addr":       addr,
		"paddle_env": paddleClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			subscriptionsService,
			planService,
			webhookService,
			verifier,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
