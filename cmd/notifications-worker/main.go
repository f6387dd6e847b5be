package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/facetcraft/nyp-backend/internal/entitlements"
	"github.com/facetcraft/nyp-backend/internal/notifications"
	"github.com/facetcraft/nyp-backend/pkg/config"
	"github.com/facetcraft/nyp-backend/pkg/db"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/outbox/idempotency"
	"github.com/facetcraft/nyp-backend/pkg/pubsub"
	"github.com/facetcraft/nyp-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "notifications-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "notifications-worker"

	logg = logger.New(logger.Options{
		ServiceName: "notifications-worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := notifications.NewConsumer(
		pubsubClient.NotificationSubscription(),
		manager,
		notifications.NewPreferenceRepository(dbClient.DB()),
		notifications.NewLogSender(logg),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting notifications worker")

	runners := []func(context.Context) error{consumer.Run}
	if cfg.FeatureFlags.SpendCache {
		invalidator, err := entitlements.NewSpendInvalidationConsumer(
			pubsubClient.OrderSubscription(),
			entitlements.NewCachedSpendReader(nil, redisClient, cfg.NYP.SpendCacheTTL, logg),
			logg,
		)
		if err != nil {
			logg.Error(ctx, "failed to create spend invalidation consumer", err)
			os.Exit(1)
		}
		runners = append(runners, invalidator.Run)
		logg.Info(ctx, "spend cache invalidation enabled")
	}

	errs := make(chan error, len(runners))
	for _, run := range runners {
		go func(run func(context.Context) error) {
			errs <- run(ctx)
		}(run)
	}
	for range runners {
		if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "notifications worker stopped unexpectedly", err)
			stop()
			os.Exit(1)
		}
	}

	logg.Info(ctx, "notifications worker shutting down gracefully")
}
