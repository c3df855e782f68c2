package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"golang.org/x/crypto/bcrypt"

	"github.com/michelrosettaa/FlowAi-sub000/internal/catalog"
	"github.com/michelrosettaa/FlowAi-sub000/internal/config"
	"github.com/michelrosettaa/FlowAi-sub000/internal/database"
	"github.com/michelrosettaa/FlowAi-sub000/internal/middleware"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	"github.com/michelrosettaa/FlowAi-sub000/internal/provider/stripe"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository/sqlite"
	"github.com/michelrosettaa/FlowAi-sub000/internal/service"
)

const (
	webhookSecret = "whsec_handler_test"
	serviceToken  = "svc-token"
	adminToken    = "admin-token"
)

var (
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

// mockSessionProvider is a mock implementation of service.SessionProvider.
type mockSessionProvider struct {
	checkoutFunc func(ctx context.Context, req stripe.CheckoutRequest) (string, error)
	portalFunc   func(ctx context.Context, providerCustomerID, returnURL string) (string, error)
}

func (m *mockSessionProvider) CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (string, error) {
	if m.checkoutFunc != nil {
		return m.checkoutFunc(ctx, req)
	}
	return "", nil
}

func (m *mockSessionProvider) CreatePortalSession(ctx context.Context, providerCustomerID, returnURL string) (string, error) {
	if m.portalFunc != nil {
		return m.portalFunc(ctx, providerCustomerID, returnURL)
	}
	return "", nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func strPtr(s string) *string { return &s }

func testPlans() []models.Plan {
	return []models.Plan{
		{
			Slug:     "free",
			Name:     "Free",
			IsActive: true,
			Limits: map[models.Feature]int64{
				models.FeatureAIMessages:     20,
				models.FeatureEmailSends:     50,
				models.FeatureCalendarSyncs:  1,
				models.FeatureEmailCampaigns: 0,
			},
		},
		{
			Slug:               "pro",
			Name:               "Pro",
			PriceMonthly:       1900,
			PriceAnnual:        19000,
			StripePriceMonthly: strPtr("price_pro_month"),
			StripePriceAnnual:  strPtr("price_pro_year"),
			IsActive:           true,
			SortOrder:          1,
			Limits: map[models.Feature]int64{
				models.FeatureAIMessages:     1000,
				models.FeatureEmailSends:     2000,
				models.FeatureCalendarSyncs:  5,
				models.FeatureEmailCampaigns: 10,
			},
		},
		{
			Slug:      "legacy",
			Name:      "Legacy",
			IsActive:  false,
			SortOrder: 9,
		},
	}
}

type testServer struct {
	handler  http.Handler
	sessions *mockSessionProvider
}

func hash(t *testing.T, token string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.RunMigrations())

	plans := sqlite.NewPlanRepository(db.DB())
	require.NoError(t, catalog.Seed(ctx, plans, testPlans()))
	cat := catalog.New(plans, 0)
	subs := sqlite.NewSubscriptionRepository(db.DB())
	usage := sqlite.NewUsageRepository(db.DB())
	ledger := sqlite.NewEventLedger(db.DB())

	sessions := &mockSessionProvider{}
	subscriptions := service.NewSubscriptionService(subs, cat)
	reconciler := service.NewWebhookReconciler(service.ReconcilerConfig{
		Provider:      stripe.NewClient(config.StripeConfig{WebhookSecret: webhookSecret}),
		Plans:         cat,
		Subscriptions: subs,
		Ledger:        ledger,
		Logger:        logger,
	})

	h := NewRouter(RouterConfig{
		Logger: logger,
		Auth: middleware.AuthConfig{
			ServiceTokenHash: hash(t, serviceToken),
			AdminTokenHash:   hash(t, adminToken),
		},
		Webhooks:     NewWebhookHandler(reconciler, logger),
		Entitlements: NewEntitlementHandler(service.NewEntitlementService(subs, cat, usage, logger)),
		Billing:      NewBillingHandler(cat, subscriptions, service.NewCheckoutService(cat, subs, sessions, logger)),
		Admin:        NewAdminHandler(subscriptions),
		Health:       NewHealthHandler(map[string]Pinger{"database": db}),
		Gated: []GatedRoute{{
			Method:  http.MethodPost,
			Pattern: "/calendar/sync",
			Feature: models.FeatureCalendarSyncs,
			Handler: http.HandlerFunc(calendarSync),
		}},
	})
	return &testServer{handler: h, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func asCustomer(customerID string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+serviceToken)
	h.Set(middleware.DefaultCustomerHeader, customerID)
	return h
}

func asAdmin() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+adminToken)
	return h
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

func subscriptionEvent(eventID, eventType, customerID, price string) string {
	return fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": %q,
  "data": {
    "object": {
      "id": "sub_%s",
      "object": "subscription",
      "customer": "cus_%s",
      "status": "active",
      "metadata": {"customer_id": %q},
      "items": {"data": [{"id": "si_1", "price": {"id": %q},
        "current_period_start": %d, "current_period_end": %d}]}
    }
  }
}`, eventID, eventType, customerID, customerID, customerID, price, periodStart.Unix(), periodEnd.Unix())
}

func (s *testServer) deliver(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	h := http.Header{}
	h.Set(SignatureHeader, signed.Header)
	return s.do(t, http.MethodPost, "/webhooks/stripe", string(signed.Payload), h)
}

func ackOf(t *testing.T, rec *httptest.ResponseRecorder) WebhookAck {
	t.Helper()
	var ack WebhookAck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	return ack
}

func TestWebhook_SignedDeliveryUpdatesSubscription(t *testing.T) {
	s := newTestServer(t)
	payload := subscriptionEvent("evt_1", models.EventSubscriptionUpdated, "u1", "price_pro_month")

	rec := s.deliver(t, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	ack := ackOf(t, rec)
	assert.True(t, ack.Received)
	assert.Equal(t, service.OutcomeProcessed, ack.Outcome)
	assert.Equal(t, "evt_1", ack.EventID)

	rec = s.do(t, http.MethodGet, "/v1/billing/subscription", "", asCustomer("u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Subscription models.Subscription `json:"subscription"`
		Plan         models.Plan         `json:"plan"`
	}
	decodeData(t, rec, &view)
	assert.Equal(t, "pro", view.Subscription.PlanSlug)
	assert.Equal(t, models.StatusActive, view.Subscription.Status)
	require.NotNil(t, view.Subscription.CurrentPeriodStart)
	assert.True(t, periodStart.Equal(*view.Subscription.CurrentPeriodStart))
	assert.Equal(t, "Pro", view.Plan.Name)

	// Redelivery is acknowledged without reprocessing.
	rec = s.deliver(t, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.OutcomeDuplicate, ackOf(t, rec).Outcome)
}

func TestWebhook_UnknownPriceIsAcknowledged(t *testing.T) {
	s := newTestServer(t)

	rec := s.deliver(t, subscriptionEvent("evt_2", models.EventSubscriptionCreated, "u2", "price_unknown"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.OutcomeSkipped, ackOf(t, rec).Outcome)

	rec = s.do(t, http.MethodGet, "/v1/billing/subscription", "", asCustomer("u2"))
	var view struct {
		Subscription models.Subscription `json:"subscription"`
	}
	decodeData(t, rec, &view)
	assert.Equal(t, models.FreePlanSlug, view.Subscription.PlanSlug)
}

func TestWebhook_BadPayloadDataAcknowledged(t *testing.T) {
	s := newTestServer(t)
	period := func(start, end time.Time) string {
		return fmt.Sprintf(`"current_period_start": %d, "current_period_end": %d`, start.Unix(), end.Unix())
	}
	valid := subscriptionEvent("evt_4", models.EventSubscriptionUpdated, "u4", "price_pro_month")
	inverted := strings.Replace(valid, period(periodStart, periodEnd), period(periodEnd, periodStart), 1)
	require.NotEqual(t, valid, inverted)

	rec := s.deliver(t, inverted)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.OutcomeSkipped, ackOf(t, rec).Outcome)

	rec = s.deliver(t, inverted)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.OutcomeDuplicate, ackOf(t, rec).Outcome)
}

func TestWebhook_Rejections(t *testing.T) {
	s := newTestServer(t)
	payload := subscriptionEvent("evt_3", models.EventSubscriptionUpdated, "u3", "price_pro_month")

	h := http.Header{}
	h.Set(SignatureHeader, "t=1,v1=deadbeef")
	rec := s.do(t, http.MethodPost, "/webhooks/stripe", payload, h)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/webhooks/stripe", payload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	huge := strings.Repeat("x", MaxWebhookBytes+1)
	rec = s.do(t, http.MethodPost, "/webhooks/stripe", huge, h)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEntitlements_CheckConsumeDeny(t *testing.T) {
	s := newTestServer(t)
	customer := asCustomer("u1")

	rec := s.do(t, http.MethodGet, "/v1/entitlements/ai_messages", "", customer)
	require.Equal(t, http.StatusOK, rec.Code)
	var d service.Decision
	decodeData(t, rec, &d)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(20), d.Limit)
	assert.Equal(t, "free", d.PlanSlug)

	rec = s.do(t, http.MethodPost, "/v1/entitlements/ai_messages/consume", `{"amount":20}`, customer)
	require.Equal(t, http.StatusOK, rec.Code)
	var used models.FeatureUsage
	decodeData(t, rec, &used)
	assert.Equal(t, int64(20), used.Used)

	rec = s.do(t, http.MethodGet, "/v1/entitlements/ai_messages", "", customer)
	require.Equal(t, http.StatusOK, rec.Code)
	d = service.Decision{}
	decodeData(t, rec, &d)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(20), d.CurrentUsage)
	assert.Equal(t, "Free", d.PlanName)
	assert.NotEmpty(t, d.Message)
}

// calendarSync stands in for a product endpoint; ?fail=1 makes it fail upstream.
func calendarSync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("fail") == "1" {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func TestGatedRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/calendar/sync", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A failed action is not counted.
	rec = s.do(t, http.MethodPost, "/v1/calendar/sync?fail=1", "", asCustomer("u1"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/calendar/sync", "", asCustomer("u1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/calendar/sync", "", asCustomer("u1"))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "quota_exceeded", decodeErrorCode(t, rec))

	rec = s.do(t, http.MethodGet, "/v1/entitlements/calendar_syncs", "", asCustomer("u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var d service.Decision
	decodeData(t, rec, &d)
	assert.Equal(t, int64(1), d.CurrentUsage)
	assert.False(t, d.Allowed)
}

func TestEntitlements_ConsumeBodies(t *testing.T) {
	s := newTestServer(t)
	customer := asCustomer("u1")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantUsed   int64
	}{
		{"empty body counts one", "", http.StatusOK, 1},
		{"zero counts one", `{"amount":0}`, http.StatusOK, 2},
		{"explicit amount", `{"amount":3}`, http.StatusOK, 5},
		{"negative amount", `{"amount":-1}`, http.StatusBadRequest, 0},
		{"unknown field", `{"amout":3}`, http.StatusBadRequest, 0},
		{"malformed", `{`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/entitlements/email_sends/consume", tt.body, customer)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				var used models.FeatureUsage
				decodeData(t, rec, &used)
				assert.Equal(t, tt.wantUsed, used.Used)
			}
		})
	}
}

func TestEntitlements_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/entitlements/teleportation", "", asCustomer("u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeErrorCode(t, rec))

	rec = s.do(t, http.MethodGet, "/v1/entitlements/ai_messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	h := http.Header{}
	h.Set("Authorization", "Bearer "+serviceToken)
	rec = s.do(t, http.MethodGet, "/v1/entitlements/ai_messages", "", h)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageSummary(t *testing.T) {
	s := newTestServer(t)
	customer := asCustomer("u1")

	rec := s.do(t, http.MethodPost, "/v1/entitlements/calendar_syncs/consume", `{"amount":1}`, customer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/usage", "", customer)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.UsageSummary
	decodeData(t, rec, &summary)
	assert.Equal(t, "u1", summary.CustomerID)
	assert.Equal(t, "free", summary.Plan)
	require.Len(t, summary.Features, len(models.AllFeatures))

	byFeature := make(map[models.Feature]models.FeatureUsage)
	for _, f := range summary.Features {
		byFeature[f.Feature] = f
	}
	assert.Equal(t, int64(1), byFeature[models.FeatureCalendarSyncs].Used)
	assert.Equal(t, int64(1), byFeature[models.FeatureCalendarSyncs].Limit)
}

func TestListPlans_IsPublicAndOrdered(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "price_pro_month")

	var body struct {
		Plans []models.Plan `json:"plans"`
	}
	decodeData(t, rec, &body)
	require.Len(t, body.Plans, 2)
	assert.Equal(t, "free", body.Plans[0].Slug)
	assert.Equal(t, "pro", body.Plans[1].Slug)
}

func TestCheckout(t *testing.T) {
	s := newTestServer(t)
	var got stripe.CheckoutRequest
	s.sessions.checkoutFunc = func(ctx context.Context, req stripe.CheckoutRequest) (string, error) {
		got = req
		return "https://checkout.stripe.com/c/pay/cs_test", nil
	}

	body := `{"plan":"pro","billing_period":"annual","success_url":"https://app.example.com/ok","cancel_url":"https://app.example.com/billing"}`
	rec := s.do(t, http.MethodPost, "/v1/billing/checkout", body, asCustomer("u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp URLResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test", resp.URL)
	assert.Equal(t, "u1", got.CustomerID)
	assert.Equal(t, "price_pro_year", got.PriceID)
}

func TestCheckout_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing fields", `{"plan":"pro"}`, http.StatusBadRequest, "validation_error"},
		{"bad period", `{"plan":"pro","billing_period":"weekly","success_url":"https://a.example/ok","cancel_url":"https://a.example/no"}`, http.StatusBadRequest, "validation_error"},
		{"bad url", `{"plan":"pro","billing_period":"monthly","success_url":"nope","cancel_url":"https://a.example/no"}`, http.StatusBadRequest, "validation_error"},
		{"unknown plan", `{"plan":"enterprise","billing_period":"monthly","success_url":"https://a.example/ok","cancel_url":"https://a.example/no"}`, http.StatusNotFound, "not_found"},
		{"free plan", `{"plan":"free","billing_period":"monthly","success_url":"https://a.example/ok","cancel_url":"https://a.example/no"}`, http.StatusBadRequest, "validation_error"},
		{"malformed", `plan=pro`, http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/billing/checkout", tt.body, asCustomer("u1"))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeErrorCode(t, rec))
		})
	}
}

func TestPortal(t *testing.T) {
	s := newTestServer(t)
	s.sessions.portalFunc = func(ctx context.Context, providerCustomerID, returnURL string) (string, error) {
		assert.Equal(t, "cus_u1", providerCustomerID)
		return "https://billing.stripe.com/p/session/test", nil
	}
	body := `{"return_url":"https://app.example.com/billing"}`

	rec := s.do(t, http.MethodPost, "/v1/billing/portal", body, asCustomer("u1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, s.deliver(t, subscriptionEvent("evt_p", models.EventSubscriptionCreated, "u1", "price_pro_month")).Code)

	rec = s.do(t, http.MethodPost, "/v1/billing/portal", body, asCustomer("u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp URLResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "https://billing.stripe.com/p/session/test", resp.URL)
}

func TestAdmin(t *testing.T) {
	s := newTestServer(t)
	for i, customer := range []string{"a", "b", "c"} {
		rec := s.deliver(t, subscriptionEvent(fmt.Sprintf("evt_a%d", i), models.EventSubscriptionCreated, customer, "price_pro_month"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/admin/stats", "", asCustomer("a"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/subscriptions?limit=2&status=active", "", asAdmin())
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data []models.Subscription `json:"data"`
		Meta struct {
			Limit      int    `json:"limit"`
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Data, 2)
	assert.Equal(t, "b", page.Meta.NextCursor)

	rec = s.do(t, http.MethodGet, "/admin/subscriptions?cursor=b&limit=2", "", asAdmin())
	require.Equal(t, http.StatusOK, rec.Code)
	page.Data, page.Meta.NextCursor = nil, ""
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "c", page.Data[0].CustomerID)
	assert.Empty(t, page.Meta.NextCursor)

	rec = s.do(t, http.MethodGet, "/admin/subscriptions?limit=zero", "", asAdmin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/stats", "", asAdmin())
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.SubscriptionStats
	decodeData(t, rec, &stats)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3*1900), stats.MonthlyRecurringRevenue)

	rec = s.do(t, http.MethodGet, "/admin/subscriptions/a/history", "", asAdmin())
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		History []models.SubscriptionHistory `json:"history"`
	}
	decodeData(t, rec, &history)
	require.NotEmpty(t, history.History)
	assert.Equal(t, "pro", history.History[len(history.History)-1].PlanSlug)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady_DependencyDown(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"database": pingFunc(func(ctx context.Context) error { return nil }),
		"redis":    pingFunc(func(ctx context.Context) error { return io.ErrUnexpectedEOF }),
	})

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte(`"redis":"unavailable"`)))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
