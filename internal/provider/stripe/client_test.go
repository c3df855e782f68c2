package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/michelrosettaa/FlowAi-sub000/internal/config"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
)

const testSecret = "whsec_test"

const subscriptionEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "customer.subscription.updated",
  "data": {
    "object": {
      "id": "sub_1",
      "object": "subscription",
      "customer": "cus_1",
      "status": "active",
      "metadata": {"customer_id": "u1"},
      "items": {"data": [{"id": "si_1", "price": {"id": "price_pro_month"},
        "current_period_start": 1772323200, "current_period_end": 1775001600}]}
    }
  }
}`

func sign(payload string, secret string) (body []byte, header string) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func TestClient_ConstructEvent(t *testing.T) {
	c := NewClient(config.StripeConfig{WebhookSecret: testSecret})
	require.True(t, c.HasWebhookSecret())

	body, header := sign(subscriptionEvent, testSecret)
	event, err := c.ConstructEvent(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, models.EventSubscriptionUpdated, event.Type)
	assert.True(t, event.Verified)

	var sub Subscription
	require.NoError(t, json.Unmarshal(event.Payload, &sub))
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "u1", sub.CustomerReference())
}

func TestClient_ConstructEventRejects(t *testing.T) {
	c := NewClient(config.StripeConfig{WebhookSecret: testSecret})

	tests := []struct {
		name   string
		body   []byte
		header string
	}{
		{"missing signature", []byte(subscriptionEvent), ""},
		{"garbage signature", []byte(subscriptionEvent), "t=1,v1=deadbeef"},
		{"wrong secret", func() []byte { b, _ := sign(subscriptionEvent, "whsec_other"); return b }(),
			func() string { _, h := sign(subscriptionEvent, "whsec_other"); return h }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ConstructEvent(tt.body, tt.header)
			require.Error(t, err)
			assert.Equal(t, apierrors.KindAuthentication, apierrors.Classify(err))
		})
	}
}

func TestClient_ParseEventUnverified(t *testing.T) {
	c := NewClient(config.StripeConfig{})
	assert.False(t, c.HasWebhookSecret())

	event, err := c.ParseEvent([]byte(subscriptionEvent))
	require.NoError(t, err)
	assert.False(t, event.Verified)
	assert.Equal(t, "evt_1", event.ID)

	_, err = c.ParseEvent([]byte(`{"object":"event"}`))
	assert.Equal(t, apierrors.KindAuthentication, apierrors.Classify(err))

	_, err = c.ParseEvent([]byte(`not json`))
	assert.Equal(t, apierrors.KindAuthentication, apierrors.Classify(err))
}

func TestClient_FetchSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "sub_1",
			"object": "subscription",
			"customer": "cus_1",
			"status": "past_due",
			"current_period_start": 1772323200,
			"current_period_end": 1775001600,
			"metadata": {"user_id": "u7"},
			"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_pro_year"}}]}
		}`))
	}))
	defer srv.Close()

	backend := stripelib.GetBackendWithConfig(stripelib.APIBackend, &stripelib.BackendConfig{
		URL:           stripelib.String(srv.URL),
		HTTPClient:    srv.Client(),
		LeveledLogger: &stripelib.LeveledLogger{Level: stripelib.LevelNull},
	})
	c := NewClient(config.StripeConfig{SecretKey: "sk_test_123"}, WithBackend(backend))

	sub, err := c.FetchSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "past_due", sub.Status)
	assert.Equal(t, "u7", sub.CustomerReference())
	assert.Equal(t, "price_pro_year", sub.FirstPriceID())

	start, end := sub.Period()
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), *end)
}

func TestClient_RequiresSecretKey(t *testing.T) {
	c := NewClient(config.StripeConfig{})
	ctx := context.Background()

	_, err := c.FetchSubscription(ctx, "sub_1")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.CreateCheckoutSession(ctx, CheckoutRequest{PriceID: "price_pro_month"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.CreatePortalSession(ctx, "cus_1", "https://app.example.com")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
