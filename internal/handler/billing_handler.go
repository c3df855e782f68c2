package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/michelrosettaa/FlowAi-sub000/internal/middleware"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/response"
	"github.com/michelrosettaa/FlowAi-sub000/internal/service"
)

// PlanLister lists the public plan catalog.
type PlanLister interface {
	ListActivePlans(ctx context.Context) ([]*models.Plan, error)
}

// BillingHandler serves the plan catalog, the current subscription and the
// hosted checkout and portal links.
type BillingHandler struct {
	plans         PlanLister
	subscriptions service.SubscriptionService
	checkout      service.CheckoutService
	validate      *validator.Validate
}

// NewBillingHandler creates a new billing handler.
func NewBillingHandler(plans PlanLister, subscriptions service.SubscriptionService, checkout service.CheckoutService) *BillingHandler {
	return &BillingHandler{
		plans:         plans,
		subscriptions: subscriptions,
		checkout:      checkout,
		validate:      newValidator(),
	}
}

// URLResponse carries a provider-hosted page to redirect to.
type URLResponse struct {
	URL string `json:"url"`
}

// ListPlans handles GET /v1/plans
func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListActivePlans(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]any{"plans": plans})
}

// GetSubscription handles GET /v1/billing/subscription
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.GetCustomerID(r.Context())
	if customerID == "" {
		response.Error(w, apierrors.ErrUnauthorized)
		return
	}

	view, err := h.subscriptions.Get(r.Context(), customerID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, view)
}

// CreateCheckout handles POST /v1/billing/checkout
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.GetCustomerID(r.Context())
	if customerID == "" {
		response.Error(w, apierrors.ErrUnauthorized)
		return
	}

	var req service.CheckoutRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		response.Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, validationError(err))
		return
	}

	url, err := h.checkout.CreateCheckout(r.Context(), customerID, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, URLResponse{URL: url})
}

// CreatePortal handles POST /v1/billing/portal
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.GetCustomerID(r.Context())
	if customerID == "" {
		response.Error(w, apierrors.ErrUnauthorized)
		return
	}

	var req service.PortalRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		response.Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, validationError(err))
		return
	}

	url, err := h.checkout.CreatePortal(r.Context(), customerID, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, URLResponse{URL: url})
}
