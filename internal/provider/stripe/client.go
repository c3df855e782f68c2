package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/michelrosettaa/FlowAi-sub000/internal/config"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
)

// ErrNotConfigured is returned by API calls when no secret key is set.
var ErrNotConfigured = errors.New("stripe: secret key not configured")

// Client talks to Stripe with an injected backend and key. It never touches
// the SDK's global key.
type Client struct {
	key           string
	webhookSecret string
	backend       stripelib.Backend
}

// Option configures a Client.
type Option func(*Client)

// WithBackend overrides the API backend, e.g. to point at a test server.
func WithBackend(b stripelib.Backend) Option {
	return func(c *Client) { c.backend = b }
}

// NewClient creates a Stripe client.
func NewClient(cfg config.StripeConfig, opts ...Option) *Client {
	c := &Client{
		key:           cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		c.backend = stripelib.GetBackend(stripelib.APIBackend)
	}
	return c
}

// HasWebhookSecret reports whether signed deliveries can be verified.
func (c *Client) HasWebhookSecret() bool {
	return strings.TrimSpace(c.webhookSecret) != ""
}

// ConstructEvent verifies the Stripe-Signature header against payload.
func (c *Client) ConstructEvent(payload []byte, signature string) (*models.WebhookEvent, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, apierrors.NewAuthenticationError("missing Stripe signature")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apierrors.NewAuthenticationError("invalid Stripe signature").Wrap(err)
	}
	return toWebhookEvent(event, true), nil
}

// ParseEvent decodes payload without verifying it. The result is marked
// unverified.
func (c *Client) ParseEvent(payload []byte) (*models.WebhookEvent, error) {
	var event stripelib.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apierrors.NewAuthenticationError("malformed event payload").Wrap(err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, apierrors.NewAuthenticationError("event id and type are required")
	}
	return toWebhookEvent(event, false), nil
}

func toWebhookEvent(event stripelib.Event, verified bool) *models.WebhookEvent {
	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}
	return &models.WebhookEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Payload:    raw,
		ReceivedAt: time.Now().UTC(),
		Verified:   verified,
	}
}

// FetchSubscription retrieves the current state of a subscription.
func (c *Client) FetchSubscription(ctx context.Context, id string) (*Subscription, error) {
	if c.key == "" {
		return nil, ErrNotConfigured
	}

	params := &stripelib.SubscriptionParams{}
	params.Context = ctx

	client := subscription.Client{B: c.backend, Key: c.key}
	sub, err := client.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: fetch subscription %s: %w", id, err)
	}

	var raw []byte
	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		raw = sub.LastResponse.RawJSON
	} else if raw, err = json.Marshal(sub); err != nil {
		return nil, fmt.Errorf("stripe: encode subscription %s: %w", id, err)
	}

	var out Subscription
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("stripe: decode subscription %s: %w", id, err)
	}
	return &out, nil
}

// CheckoutRequest describes a hosted checkout for one plan.
type CheckoutRequest struct {
	CustomerID         string
	ProviderCustomerID string
	PlanSlug           string
	PriceID            string
	SuccessURL         string
	CancelURL          string
}

// CreateCheckoutSession starts a subscription checkout and returns its URL.
// The engine's customer id and plan travel in subscription metadata so
// later webhook events can be attributed.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	if c.key == "" {
		return "", ErrNotConfigured
	}

	metadata := map[string]string{
		MetadataCustomerID: req.CustomerID,
		MetadataPlanID:     req.PlanSlug,
	}
	params := &stripelib.CheckoutSessionParams{
		Mode: stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(req.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		ClientReferenceID: stripelib.String(req.CustomerID),
		SuccessURL:        stripelib.String(req.SuccessURL),
		CancelURL:         stripelib.String(req.CancelURL),
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if req.ProviderCustomerID != "" {
		params.Customer = stripelib.String(req.ProviderCustomerID)
	}
	params.Context = ctx
	params.Metadata = metadata

	client := checkoutsession.Client{B: c.backend, Key: c.key}
	session, err := client.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return session.URL, nil
}

// CreatePortalSession opens the customer billing portal and returns its URL.
func (c *Client) CreatePortalSession(ctx context.Context, providerCustomerID, returnURL string) (string, error) {
	if c.key == "" {
		return "", ErrNotConfigured
	}

	params := &stripelib.BillingPortalSessionParams{
		Customer:  stripelib.String(providerCustomerID),
		ReturnURL: stripelib.String(returnURL),
	}
	params.Context = ctx

	client := portalsession.Client{B: c.backend, Key: c.key}
	session, err := client.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return session.URL, nil
}
