package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/facetcraft/nyp-backend/api/routes"
	"github.com/facetcraft/nyp-backend/internal/checkout"
	"github.com/facetcraft/nyp-backend/internal/commitments"
	"github.com/facetcraft/nyp-backend/internal/entitlements"
	"github.com/facetcraft/nyp-backend/internal/negotiations"
	"github.com/facetcraft/nyp-backend/internal/notifications"
	"github.com/facetcraft/nyp-backend/internal/products"
	"github.com/facetcraft/nyp-backend/internal/purchasetokens"
	stripewebhook "github.com/facetcraft/nyp-backend/internal/webhooks/stripe"
	"github.com/facetcraft/nyp-backend/pkg/config"
	"github.com/facetcraft/nyp-backend/pkg/db"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/metrics"
	"github.com/facetcraft/nyp-backend/pkg/migrate"
	"github.com/facetcraft/nyp-backend/pkg/outbox"
	"github.com/facetcraft/nyp-backend/pkg/redis"
	"github.com/facetcraft/nyp-backend/pkg/stripe"
)

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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	services, err := buildServices(cfg, logg, dbClient, redisClient, stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, services),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, stripeClient *stripe.Client) (routes.Services, error) {
	conn := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)
	productRepo := products.NewRepository(conn)

	entitlementRepo := entitlements.NewRepository(conn)
	entitlementParams := entitlements.ServiceParams{
		Repo:      entitlementRepo,
		Tx:        dbClient,
		Outbox:    outboxSvc,
		Threshold: cfg.NYP.Threshold(),
		Logger:    logg,
	}
	if cfg.FeatureFlags.SpendCache {
		cache := entitlements.NewCachedSpendReader(entitlementRepo, redisClient, cfg.NYP.SpendCacheTTL, logg)
		entitlementParams.Spend = cache
	}
	entitlementSvc, err := entitlements.NewService(entitlementParams)
	if err != nil {
		return routes.Services{}, err
	}

	tokenRepo := purchasetokens.NewRepository(conn)
	commitmentRepo := commitments.NewRepository(conn)
	commitmentSvc, err := commitments.NewService(commitments.ServiceParams{
		Repo:    commitmentRepo,
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Tokens:  tokenRepo,
		Window:  cfg.NYP.CommitWindow,
		Metrics: engineMetrics,
		Logger:  logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	signer, err := purchasetokens.NewSigner(cfg.NYP.PurchaseTokenSecret)
	if err != nil {
		return routes.Services{}, err
	}
	tokenSvc, err := purchasetokens.NewService(purchasetokens.ServiceParams{
		Repo:        tokenRepo,
		Commitments: commitmentRepo,
		Tx:          dbClient,
		Signer:      signer,
		Metrics:     engineMetrics,
		Logger:      logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	negotiationSvc, err := negotiations.NewService(negotiations.ServiceParams{
		Repo:         negotiations.NewRepository(conn),
		Products:     productRepo,
		Entitlements: entitlementSvc,
		Commitments:  commitmentSvc,
		Tx:           dbClient,
		Outbox:       outboxSvc,
		Currency:     cfg.NYP.Currency,
		Metrics:      engineMetrics,
		Logger:       logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tokens:      tokenSvc,
		Commitments: commitmentSvc,
		Products:    productRepo,
		Sessions:    stripeClient,
		Tx:          dbClient,
		Logger:      logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Commitments: commitmentSvc,
		Logger:      logg,
	})
	if err != nil {
		return routes.Services{}, err
	}
	preferenceSvc, err := notifications.NewPreferenceService(notifications.NewPreferenceRepository(conn), nil)
	if err != nil {
		return routes.Services{}, err
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL, cfg.Stripe.Environment())
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		DB:           dbClient,
		Redis:        redisClient,
		Idempotency:  redisClient,
		RateLimiter:  redisClient,
		Entitlements: entitlementSvc,
		Negotiations: negotiationSvc,
		Tokens:       tokenSvc,
		Commitments:  commitmentSvc,
		Checkout:     checkoutSvc,
		Preferences:  preferenceSvc,
		StripeClient: stripeClient,
		Webhooks:     webhookSvc,
		WebhookGuard: webhookGuard,
	}, nil
}
