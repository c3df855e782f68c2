package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/michelrosettaa/FlowAi-sub000/internal/middleware"
	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/response"
	"github.com/michelrosettaa/FlowAi-sub000/internal/service"
)

// EntitlementHandler answers feature access and usage questions.
type EntitlementHandler struct {
	entitlements service.EntitlementService
	validate     *validator.Validate
}

// NewEntitlementHandler creates a new entitlement handler.
func NewEntitlementHandler(entitlements service.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{
		entitlements: entitlements,
		validate:     newValidator(),
	}
}

// Routes returns a chi router with entitlement routes.
func (h *EntitlementHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{feature}", h.Check)
	r.Post("/{feature}/consume", h.Consume)
	return r
}

// ConsumeHTTPRequest is the body of a consume call. Zero counts as one.
type ConsumeHTTPRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

// Check handles GET /v1/entitlements/{feature}. Denials are answered with
// 200 and allowed=false.
func (h *EntitlementHandler) Check(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.GetCustomerID(r.Context())
	if customerID == "" {
		response.Error(w, apierrors.ErrUnauthorized)
		return
	}

	decision, err := h.entitlements.Check(r.Context(), customerID, models.Feature(chi.URLParam(r, "feature")))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, decision)
}

// Consume handles POST /v1/entitlements/{feature}/consume
func (h *EntitlementHandler) Consume(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.GetCustomerID(r.Context())
	if customerID == "" {
		response.Error(w, apierrors.ErrUnauthorized)
		return
	}

	var req ConsumeHTTPRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		response.Error(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, validationError(err))
		return
	}

	usage, err := h.entitlements.Consume(r.Context(), customerID, models.Feature(chi.URLParam(r, "feature")), req.Amount)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, usage)
}

// Usage handles GET /v1/usage
func (h *EntitlementHandler) Usage(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.GetCustomerID(r.Context())
	if customerID == "" {
		response.Error(w, apierrors.ErrUnauthorized)
		return
	}

	summary, err := h.entitlements.Summary(r.Context(), customerID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, summary)
}
