// Package app opens the configured stores and builds the services shared by
// the API server and billingctl.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/michelrosettaa/FlowAi-sub000/internal/catalog"
	"github.com/michelrosettaa/FlowAi-sub000/internal/config"
	"github.com/michelrosettaa/FlowAi-sub000/internal/database"
	"github.com/michelrosettaa/FlowAi-sub000/internal/handler"
	"github.com/michelrosettaa/FlowAi-sub000/internal/notify"
	"github.com/michelrosettaa/FlowAi-sub000/internal/provider/stripe"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository/redisstore"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository/sqlite"
	"github.com/michelrosettaa/FlowAi-sub000/internal/service"
)

// migrator is implemented by both database wrappers.
type migrator interface {
	RunMigrations() error
	MigrateDown(steps int) error
}

// App holds the opened stores and the services built on them.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Plans         repository.PlanRepository
	Subscriptions repository.SubscriptionRepository
	Usage         repository.UsageRepository
	Ledger        repository.EventLedger
	Catalog       *catalog.Catalog
	Provider      *stripe.Client
	Notifier      notify.Notifier

	// Redis is nil unless a component is configured to use it.
	Redis *database.Redis

	// Checks are probed by the readiness endpoint.
	Checks map[string]handler.Pinger

	db      migrator
	closers []func()
}

// Open connects to every configured backend. Close must be called when done.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config: cfg,
		Logger: logger,
		Checks: make(map[string]handler.Pinger),
	}

	if err := a.openDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.NeedsRedis() {
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rdb
		a.Checks["redis"] = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		logger.Info("Connected to Redis", slog.String("addr", cfg.Redis.Addr()))
	}

	if cfg.Storage.UsageBackend == config.BackendRedis {
		a.Usage = redisstore.NewUsageRepository(a.Redis, cfg.Storage.UsageRetention)
	}
	if cfg.Storage.LedgerBackend == config.BackendRedis {
		a.Ledger = redisstore.NewEventLedger(a.Redis, cfg.Storage.LedgerRetention)
	}

	a.Catalog = catalog.New(a.Plans, cfg.Catalog.CacheTTL)
	a.Provider = stripe.NewClient(cfg.Stripe)

	switch cfg.Notify.Driver {
	case config.BackendRedis:
		a.Notifier = notify.NewRedisNotifier(a.Redis, cfg.Notify.Channel)
	default:
		a.Notifier = notify.NewLogNotifier(logger)
	}

	return a, nil
}

func (a *App) openDatabase(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := database.NewSQLite(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.db = db
		a.Checks["database"] = db
		a.Plans = sqlite.NewPlanRepository(db.DB())
		a.Subscriptions = sqlite.NewSubscriptionRepository(db.DB())
		a.Usage = sqlite.NewUsageRepository(db.DB())
		a.Ledger = sqlite.NewEventLedger(db.DB())
		a.Logger.Info("Opened SQLite database", slog.String("path", cfg.SQLite.Path))

	case config.DriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.db = db
		a.Checks["database"] = db
		a.Plans = repository.NewPlanRepository(db.Pool())
		a.Subscriptions = repository.NewSubscriptionRepository(db.Pool())
		a.Usage = repository.NewUsageRepository(db.Pool())
		a.Ledger = repository.NewEventLedger(db.Pool())
		a.Logger.Info("Connected to PostgreSQL", slog.String("host", cfg.Database.Host))

	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	return nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate() error {
	return a.db.RunMigrations()
}

// MigrateDown rolls back steps migrations.
func (a *App) MigrateDown(steps int) error {
	return a.db.MigrateDown(steps)
}

// SeedCatalog applies a plan seed file and drops the catalog cache.
func (a *App) SeedCatalog(ctx context.Context, path string) (int, error) {
	plans, err := catalog.LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	if err := catalog.Seed(ctx, a.Plans, plans); err != nil {
		return 0, err
	}
	a.Catalog.Invalidate()
	return len(plans), nil
}

// Reconciler builds the webhook reconciler.
func (a *App) Reconciler() service.WebhookReconciler {
	return service.NewWebhookReconciler(service.ReconcilerConfig{
		Provider:      a.Provider,
		Plans:         a.Catalog,
		Subscriptions: a.Subscriptions,
		Ledger:        a.Ledger,
		Notifier:      a.Notifier,
		Logger:        a.Logger,
		Production:    a.Config.Server.IsProduction(),
	})
}

// Entitlements builds the entitlement service.
func (a *App) Entitlements() service.EntitlementService {
	return service.NewEntitlementService(a.Subscriptions, a.Catalog, a.Usage, a.Logger)
}

// SubscriptionService builds the read-side subscription service.
func (a *App) SubscriptionService() service.SubscriptionService {
	return service.NewSubscriptionService(a.Subscriptions, a.Catalog)
}

// Checkout builds the checkout service.
func (a *App) Checkout() service.CheckoutService {
	return service.NewCheckoutService(a.Catalog, a.Subscriptions, a.Provider, a.Logger)
}

// Close releases every opened backend, last opened first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
