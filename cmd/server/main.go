// Package main is the entry point for the billing API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/michelrosettaa/FlowAi-sub000/internal/app"
	"github.com/michelrosettaa/FlowAi-sub000/internal/config"
	"github.com/michelrosettaa/FlowAi-sub000/internal/database"
	"github.com/michelrosettaa/FlowAi-sub000/internal/handler"
	"github.com/michelrosettaa/FlowAi-sub000/internal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting billing API",
		slog.String("environment", cfg.Server.Environment),
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Driver),
	)

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer a.Close()

	// Run migrations
	if err := a.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	if cfg.Catalog.SeedFile != "" {
		n, err := a.SeedCatalog(ctx, cfg.Catalog.SeedFile)
		if err != nil {
			log.Fatalf("Failed to seed plan catalog: %v", err)
		}
		logger.Info("Plan catalog seeded", slog.Int("plans", n), slog.String("file", cfg.Catalog.SeedFile))
	}

	if !a.Provider.HasWebhookSecret() {
		logger.Warn("stripe.webhook_secret is not set; webhook signatures will not be verified")
	}

	subscriptions := a.SubscriptionService()
	router := handler.NewRouter(handler.RouterConfig{
		Logger: logger,
		Auth: middleware.AuthConfig{
			ServiceTokenHash: cfg.Auth.ServiceTokenHash,
			AdminTokenHash:   cfg.Auth.AdminTokenHash,
			CustomerHeader:   cfg.Auth.CustomerHeader,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
		Redis:          rateLimitRedis(a, cfg),
		RateLimit: middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.RateLimit.BurstSize,
		},
		Webhooks:     handler.NewWebhookHandler(a.Reconciler(), logger),
		Entitlements: handler.NewEntitlementHandler(a.Entitlements()),
		Billing:      handler.NewBillingHandler(a.Catalog, subscriptions, a.Checkout()),
		Admin:        handler.NewAdminHandler(subscriptions),
		Health:       handler.NewHealthHandler(a.Checks),
	})

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down server", slog.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", slog.String("error", err.Error()))
		return
	}

	logger.Info("Server stopped gracefully")
}

// rateLimitRedis returns the client backing the rate limiter, or nil when
// rate limiting is off.
func rateLimitRedis(a *app.App, cfg *config.Config) *database.Redis {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return a.Redis
}

func logLevel(level string) slog.Level {
	if os.Getenv("DEBUG") == "true" {
		return slog.LevelDebug
	}
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
