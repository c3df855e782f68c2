package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/response"
	"github.com/michelrosettaa/FlowAi-sub000/internal/repository"
	"github.com/michelrosettaa/FlowAi-sub000/internal/service"
)

// AdminHandler serves operator reporting.
type AdminHandler struct {
	subscriptions service.SubscriptionService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(subscriptions service.SubscriptionService) *AdminHandler {
	return &AdminHandler{subscriptions: subscriptions}
}

// Routes returns a chi router with admin routes.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/subscriptions", h.ListSubscriptions)
	r.Get("/subscriptions/{customerID}", h.GetSubscription)
	r.Get("/subscriptions/{customerID}/history", h.History)
	r.Get("/stats", h.Stats)
	return r
}

// ListSubscriptions handles GET /admin/subscriptions?cursor=&limit=&status=
func (h *AdminHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := repository.ListOptions{
		Cursor: q.Get("cursor"),
		Status: models.SubscriptionStatus(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			response.Error(w, apierrors.NewValidationError("limit", "limit must be a positive integer"))
			return
		}
		opts.Limit = limit
	}

	subs, next, err := h.subscriptions.List(r.Context(), opts)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, subs, &response.Meta{
		Limit:      opts.PageSize(),
		NextCursor: next,
	})
}

// GetSubscription handles GET /admin/subscriptions/{customerID}
func (h *AdminHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.subscriptions.Get(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, view)
}

// History handles GET /admin/subscriptions/{customerID}/history
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.subscriptions.History(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]any{"history": history})
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.subscriptions.Stats(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, stats)
}
