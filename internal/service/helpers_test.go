package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/michelrosettaa/FlowAi-sub000/internal/catalog"
	"github.com/michelrosettaa/FlowAi-sub000/internal/database"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	"github.com/michelrosettaa/FlowAi-sub000/internal/notify"
	"github.com/michelrosettaa/FlowAi-sub000/internal/provider/stripe"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository/sqlite"
)

var (
	t0      = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	t1      = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	fixedAt = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
)

// --- Mocks ---

type MockEventProvider struct {
	mock.Mock
}

func (m *MockEventProvider) HasWebhookSecret() bool {
	return m.Called().Bool(0)
}

func (m *MockEventProvider) ConstructEvent(payload []byte, signature string) (*models.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookEvent), args.Error(1)
}

func (m *MockEventProvider) ParseEvent(payload []byte) (*models.WebhookEvent, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookEvent), args.Error(1)
}

func (m *MockEventProvider) FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) PaymentFailed(ctx context.Context, n notify.Notice) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotifier) TrialEnding(ctx context.Context, n notify.Notice) error {
	return m.Called(ctx, n).Error(0)
}

type MockUsageRepository struct {
	mock.Mock
}

func (m *MockUsageRepository) Get(ctx context.Context, customerID string, feature models.Feature, periodKey string) (int64, error) {
	args := m.Called(ctx, customerID, feature, periodKey)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsageRepository) Increment(ctx context.Context, customerID string, feature models.Feature, periodKey string, amount int64) (int64, error) {
	args := m.Called(ctx, customerID, feature, periodKey, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsageRepository) ListForPeriod(ctx context.Context, customerID, periodKey string) (map[models.Feature]int64, error) {
	args := m.Called(ctx, customerID, periodKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.Feature]int64), args.Error(1)
}

type MockSessionProvider struct {
	mock.Mock
}

func (m *MockSessionProvider) CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockSessionProvider) CreatePortalSession(ctx context.Context, providerCustomerID, returnURL string) (string, error) {
	args := m.Called(ctx, providerCustomerID, returnURL)
	return args.String(0), args.Error(1)
}

// failingSubscriptions breaks writes of an otherwise working store.
type failingSubscriptions struct {
	repository.SubscriptionRepository
	err error
}

func (f *failingSubscriptions) Upsert(ctx context.Context, sub *models.Subscription) (bool, error) {
	return false, f.err
}

// --- Fixture ---

type fixture struct {
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	usage    repository.UsageRepository
	ledger   repository.EventLedger
	catalog  *catalog.Catalog
	provider *MockEventProvider
	notifier *MockNotifier
	logger   *slog.Logger
}

func strPtr(s string) *string { return &s }

func testCatalog() []models.Plan {
	return []models.Plan{
		{
			Slug: "free",
			Name: "Free",
			Limits: map[models.Feature]int64{
				models.FeatureAIMessages:     20,
				models.FeatureEmailSends:     50,
				models.FeatureCalendarSyncs:  1,
				models.FeatureEmailCampaigns: 0,
			},
			IsActive: true,
		},
		{
			Slug:               "basic",
			Name:               "Basic",
			PriceMonthly:       900,
			StripePriceMonthly: strPtr("price_basic_month"),
			Limits:             map[models.Feature]int64{models.FeatureAIMessages: 50},
			IsActive:           true,
			SortOrder:          1,
		},
		{
			Slug:               "pro",
			Name:               "Pro",
			PriceMonthly:       1900,
			PriceAnnual:        19000,
			StripePriceMonthly: strPtr("price_pro_month"),
			StripePriceAnnual:  strPtr("price_pro_year"),
			Limits: map[models.Feature]int64{
				models.FeatureAIMessages:     100,
				models.FeatureEmailSends:     2000,
				models.FeatureCalendarSyncs:  5,
				models.FeatureEmailCampaigns: 10,
			},
			IsActive:  true,
			SortOrder: 2,
		},
		{
			Slug:               "team",
			Name:               "Team",
			PriceMonthly:       4900,
			PriceAnnual:        49000,
			StripePriceMonthly: strPtr("price_team_month"),
			StripePriceAnnual:  strPtr("price_team_year"),
			Limits: map[models.Feature]int64{
				models.FeatureAIMessages:     models.Unlimited,
				models.FeatureEmailSends:     10000,
				models.FeatureCalendarSyncs:  models.Unlimited,
				models.FeatureEmailCampaigns: models.Unlimited,
			},
			IsActive:  true,
			SortOrder: 3,
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.RunMigrations())

	f := &fixture{
		plans:    sqlite.NewPlanRepository(db.DB()),
		subs:     sqlite.NewSubscriptionRepository(db.DB()),
		usage:    sqlite.NewUsageRepository(db.DB()),
		ledger:   sqlite.NewEventLedger(db.DB()),
		provider: new(MockEventProvider),
		notifier: new(MockNotifier),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	require.NoError(t, catalog.Seed(context.Background(), f.plans, testCatalog()))
	f.catalog = catalog.New(f.plans, 0)
	return f
}

func (f *fixture) reconciler() *reconciler {
	r := NewWebhookReconciler(ReconcilerConfig{
		Provider:      f.provider,
		Plans:         f.catalog,
		Subscriptions: f.subs,
		Ledger:        f.ledger,
		Notifier:      f.notifier,
		Logger:        f.logger,
	}).(*reconciler)
	r.now = func() time.Time { return fixedAt }
	return r
}

func (f *fixture) entitlements() *entitlementService {
	s := NewEntitlementService(f.subs, f.catalog, f.usage, f.logger).(*entitlementService)
	s.now = func() time.Time { return fixedAt }
	return s
}

// --- Provider payloads ---

type subPayload struct {
	ID         string
	Customer   string
	Status     string
	Price      string
	Start, End time.Time
	Metadata   map[string]string
	CanceledAt time.Time
	EndedAt    time.Time
	TrialEnd   time.Time
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (p subPayload) raw(t *testing.T) json.RawMessage {
	t.Helper()
	obj := map[string]any{
		"id":          p.ID,
		"object":      "subscription",
		"customer":    p.Customer,
		"status":      p.Status,
		"metadata":    p.Metadata,
		"canceled_at": unix(p.CanceledAt),
		"ended_at":    unix(p.EndedAt),
		"trial_end":   unix(p.TrialEnd),
		"items": map[string]any{
			"data": []map[string]any{{
				"id":                   "si_" + p.ID,
				"price":                map[string]any{"id": p.Price},
				"current_period_start": unix(p.Start),
				"current_period_end":   unix(p.End),
			}},
		},
	}
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return raw
}

func (p subPayload) decode(t *testing.T) *stripe.Subscription {
	t.Helper()
	var sub stripe.Subscription
	require.NoError(t, json.Unmarshal(p.raw(t), &sub))
	return &sub
}

func event(id, eventType string, payload json.RawMessage) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:         id,
		Type:       eventType,
		Payload:    payload,
		ReceivedAt: fixedAt,
		Verified:   true,
	}
}

func proUpdate(customerID string) subPayload {
	return subPayload{
		ID:       "sub_1",
		Customer: "cus_1",
		Status:   "active",
		Price:    "price_pro_month",
		Start:    t0,
		End:      t1,
		Metadata: map[string]string{"customer_id": customerID},
	}
}
