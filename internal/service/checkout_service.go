package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/michelrosettaa/FlowAi-sub000/internal/catalog"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/provider/stripe"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
)

// SessionProvider opens hosted billing pages at the provider.
type SessionProvider interface {
	CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, providerCustomerID, returnURL string) (string, error)
}

// CheckoutRequest asks for a hosted checkout of one plan.
type CheckoutRequest struct {
	Plan          string               `json:"plan" validate:"required"`
	BillingPeriod models.BillingPeriod `json:"billing_period" validate:"required,oneof=monthly annual"`
	SuccessURL    string               `json:"success_url" validate:"required,url"`
	CancelURL     string               `json:"cancel_url" validate:"required,url"`
}

// PortalRequest asks for a billing portal session.
type PortalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

// CheckoutService starts purchases and self-service billing changes. The
// resulting subscription state arrives later through webhooks.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, customerID string, req CheckoutRequest) (string, error)
	CreatePortal(ctx context.Context, customerID string, req PortalRequest) (string, error)
}

type checkoutService struct {
	plans    PlanLookup
	subs     repository.SubscriptionRepository
	sessions SessionProvider
	logger   *slog.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(plans PlanLookup, subs repository.SubscriptionRepository, sessions SessionProvider, logger *slog.Logger) CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &checkoutService{plans: plans, subs: subs, sessions: sessions, logger: logger}
}

// CreateCheckout returns the hosted checkout URL for a plan.
func (s *checkoutService) CreateCheckout(ctx context.Context, customerID string, req CheckoutRequest) (string, error) {
	plan, err := s.plans.GetPlanBySlug(ctx, req.Plan)
	if err != nil {
		return "", err
	}
	priceID, err := catalog.ResolvePriceReference(plan, req.BillingPeriod)
	if err != nil {
		return "", err
	}

	sub, err := s.subs.GetCurrent(ctx, customerID)
	if err != nil {
		return "", err
	}
	var providerCustomerID string
	if sub.ProviderCustomerID != nil {
		providerCustomerID = *sub.ProviderCustomerID
	}

	url, err := s.sessions.CreateCheckoutSession(ctx, stripe.CheckoutRequest{
		CustomerID:         customerID,
		ProviderCustomerID: providerCustomerID,
		PlanSlug:           plan.Slug,
		PriceID:            priceID,
		SuccessURL:         req.SuccessURL,
		CancelURL:          req.CancelURL,
	})
	if err != nil {
		return "", providerError("create checkout session", err)
	}

	s.logger.Info("checkout session created",
		slog.String("customer_id", customerID),
		slog.String("plan", plan.Slug),
		slog.String("billing_period", string(req.BillingPeriod)),
	)
	return url, nil
}

// CreatePortal returns a billing portal URL. Only customers known to the
// provider have a portal.
func (s *checkoutService) CreatePortal(ctx context.Context, customerID string, req PortalRequest) (string, error) {
	sub, err := s.subs.GetCurrent(ctx, customerID)
	if err != nil {
		return "", err
	}
	if sub.ProviderCustomerID == nil || *sub.ProviderCustomerID == "" {
		return "", apierrors.NewNotFoundError("Billing account")
	}

	url, err := s.sessions.CreatePortalSession(ctx, *sub.ProviderCustomerID, req.ReturnURL)
	if err != nil {
		return "", providerError("create portal session", err)
	}
	return url, nil
}

func providerError(op string, err error) error {
	if errors.Is(err, stripe.ErrNotConfigured) {
		return apierrors.NewConfigurationError("billing provider is not configured")
	}
	return apierrors.ErrServiceUnavailable.WithMessage(op).Wrap(err)
}

// Compile-time check to ensure checkoutService implements CheckoutService.
var _ CheckoutService = (*checkoutService)(nil)
