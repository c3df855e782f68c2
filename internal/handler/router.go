package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michelrosettaa/FlowAi-sub000/internal/database"
	"github.com/michelrosettaa/FlowAi-sub000/internal/middleware"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
)

// GatedRoute is a product endpoint served behind a feature quota.
type GatedRoute struct {
	Method  string
	Pattern string
	Feature models.Feature
	Handler http.Handler
}

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Logger         *slog.Logger
	Auth           middleware.AuthConfig
	AllowedOrigins []string
	RequestTimeout time.Duration

	// Redis enables rate limiting when set.
	Redis     *database.Redis
	RateLimit middleware.RateLimitConfig

	Webhooks     *WebhookHandler
	Entitlements *EntitlementHandler
	Billing      *BillingHandler
	Admin        *AdminHandler
	Health       *HealthHandler

	// Gated routes are mounted under /v1 behind service auth and
	// middleware.RequireEntitlement. A 2xx answer consumes one unit.
	Gated []GatedRoute
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins...))
	r.Use(chimiddleware.Timeout(timeout))

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// The provider authenticates with a payload signature, not a token.
	r.Post("/webhooks/stripe", cfg.Webhooks.Stripe)

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.Redis != nil {
		limit = middleware.RateLimit(cfg.Redis, cfg.RateLimit, logger)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(limit).Get("/plans", cfg.Billing.ListPlans)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ServiceAuth(cfg.Auth))
			r.Use(limit)

			r.Mount("/entitlements", cfg.Entitlements.Routes())
			r.Get("/usage", cfg.Entitlements.Usage)

			r.Route("/billing", func(r chi.Router) {
				r.Get("/subscription", cfg.Billing.GetSubscription)
				r.Post("/checkout", cfg.Billing.CreateCheckout)
				r.Post("/portal", cfg.Billing.CreatePortal)
			})

			for _, g := range cfg.Gated {
				gate := middleware.RequireEntitlement(cfg.Entitlements.entitlements, g.Feature, logger)
				r.With(gate).Method(g.Method, g.Pattern, g.Handler)
			}
		})
	})

	r.With(middleware.AdminAuth(cfg.Auth)).Mount("/admin", cfg.Admin.Routes())

	return r
}
