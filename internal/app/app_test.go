package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michelrosettaa/FlowAi-sub000/internal/config"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	"github.com/michelrosettaa/FlowAi-sub000/internal/notify"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "billing.db")},
		Storage: config.StorageConfig{
			Driver:        config.DriverSQLite,
			UsageBackend:  config.BackendDB,
			LedgerBackend: config.BackendDB,
		},
		Catalog: config.CatalogConfig{CacheTTL: time.Minute},
		Notify:  config.NotifyConfig{Driver: "log"},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, sqliteConfig(t), discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, a.Migrate())
	assert.Nil(t, a.Redis)
	assert.Contains(t, a.Checks, "database")
	assert.IsType(t, &notify.LogNotifier{}, a.Notifier)

	n, err := a.SeedCatalog(ctx, filepath.Join("..", "..", "config", "plans.yaml"))
	require.NoError(t, err)
	assert.Greater(t, n, 1)

	plans, err := a.Catalog.ListActivePlans(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, plans)
	assert.Equal(t, models.FreePlanSlug, plans[0].Slug)

	d, err := a.Entitlements().Check(ctx, "u1", models.FeatureAIMessages)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "free", d.PlanSlug)

	view, err := a.SubscriptionService().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, view.Subscription.Status)
	assert.NotNil(t, a.Reconciler())
	assert.NotNil(t, a.Checkout())

	require.NoError(t, a.MigrateDown(1))
}

func TestOpen_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := sqliteConfig(t)
	cfg.Redis = config.RedisConfig{Host: mr.Host(), Port: port}
	cfg.Storage.UsageBackend = config.BackendRedis
	cfg.Storage.LedgerBackend = config.BackendRedis
	cfg.Storage.UsageRetention = time.Hour
	cfg.Storage.LedgerRetention = time.Hour
	cfg.Notify = config.NotifyConfig{Driver: config.BackendRedis, Channel: "billing.notifications"}

	ctx := context.Background()
	a, err := Open(ctx, cfg, discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NoError(t, a.Migrate())

	require.NotNil(t, a.Redis)
	assert.Contains(t, a.Checks, "redis")
	assert.IsType(t, &notify.RedisNotifier{}, a.Notifier)

	total, err := a.Usage.Increment(ctx, "u1", models.FeatureEmailSends, "2026-03", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, mr.Keys(), 1)

	claimed, err := a.Ledger.Claim(ctx, "evt_1", models.EventInvoicePaid, time.Now(), time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestOpen_RedisUnreachable(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Redis = config.RedisConfig{Host: "127.0.0.1", Port: 1}
	cfg.RateLimit.Enabled = true

	_, err := Open(context.Background(), cfg, discard())
	assert.Error(t, err)
}
