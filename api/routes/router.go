package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facetcraft/nyp-backend/api/controllers"
	webhookcontrollers "github.com/facetcraft/nyp-backend/api/controllers/webhooks"
	"github.com/facetcraft/nyp-backend/api/middleware"
	"github.com/facetcraft/nyp-backend/internal/checkout"
	"github.com/facetcraft/nyp-backend/internal/commitments"
	"github.com/facetcraft/nyp-backend/internal/entitlements"
	"github.com/facetcraft/nyp-backend/internal/negotiations"
	"github.com/facetcraft/nyp-backend/internal/notifications"
	"github.com/facetcraft/nyp-backend/internal/purchasetokens"
	stripewebhook "github.com/facetcraft/nyp-backend/internal/webhooks/stripe"
	"github.com/facetcraft/nyp-backend/pkg/config"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/redis"
	"github.com/facetcraft/nyp-backend/pkg/stripe"
)

// RateLimiter is the fixed-window counter behind write throttling.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Services bundles everything the HTTP surface calls into. Nil stores
// disable the matching middleware.
type Services struct {
	DB           controllers.Pinger
	Redis        controllers.Pinger
	Idempotency  redis.IdempotencyStore
	RateLimiter  RateLimiter
	Entitlements entitlements.Service
	Negotiations negotiations.Service
	Tokens       purchasetokens.Service
	Commitments  commitments.Service
	Checkout     checkout.Service
	Preferences  notifications.PreferenceService
	StripeClient *stripe.Client
	Webhooks     *stripewebhook.Service
	WebhookGuard *stripewebhook.IdempotencyGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	idempotent := middleware.Idempotency(svc.Idempotency, logg)
	writeLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "negotiation_writes",
		Limit:  cfg.RateLimit.NegotiationWrites,
		Window: cfg.RateLimit.Window,
	}, svc.RateLimiter, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": svc.DB,
			"redis":    svc.Redis,
		}))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(svc.Webhooks, svc.StripeClient, svc.WebhookGuard, logg))
	})

	r.With(middleware.OptionalAuth(cfg.JWT, logg)).
		Get("/api/v1/entitlements/me", controllers.EntitlementsMe(svc.Entitlements, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(writeLimit, idempotent).Post("/negotiations", controllers.OpenNegotiation(svc.Negotiations, logg))
		r.Get("/negotiations", controllers.ListNegotiations(svc.Negotiations, logg))
		r.Get("/negotiations/{negotiationId}", controllers.GetNegotiation(svc.Negotiations, logg))
		r.With(writeLimit, idempotent).Post("/negotiations/{negotiationId}/messages", controllers.AppendNegotiationMessage(svc.Negotiations, logg))
		r.Post("/negotiations/{negotiationId}/agreement", controllers.NegotiationAgreement(svc.Tokens, logg))

		r.Post("/purchase/quote", controllers.PurchaseQuote(svc.Tokens, logg))
		r.With(idempotent).Post("/purchase/checkout", controllers.PurchaseCheckout(svc.Checkout, logg))

		r.Get("/users/me/preferences", controllers.GetNotificationPreferences(svc.Preferences, logg))
		r.Patch("/users/me/preferences", controllers.UpdateNotificationPreferences(svc.Preferences, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireStaff(logg))

		r.Get("/negotiations", controllers.ListNegotiations(svc.Negotiations, logg))
		r.Get("/negotiations/{negotiationId}", controllers.GetNegotiation(svc.Negotiations, logg))
		r.With(idempotent).Post("/negotiations/{negotiationId}/messages", controllers.AppendNegotiationMessage(svc.Negotiations, logg))
		r.With(idempotent).Post("/commitments/{commitmentId}/mark-paid", controllers.AdminMarkPaid(svc.Commitments, logg))
		r.With(idempotent).Post("/products/{productId}/unavailable", controllers.AdminProductUnavailable(svc.Negotiations, logg))
		r.Patch("/users/{userId}/entitlements", controllers.AdminSetEntitlementOverride(svc.Entitlements, logg))
	})

	return r
}
