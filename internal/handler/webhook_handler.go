package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/response"
	"github.com/michelrosettaa/FlowAi-sub000/internal/service"
)

const (
	// MaxWebhookBytes caps provider deliveries.
	MaxWebhookBytes = 1 << 20
	// SignatureHeader carries the provider's payload signature.
	SignatureHeader = "Stripe-Signature"
)

// WebhookAck is the body returned to the provider.
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
	EventID  string `json:"event_id,omitempty"`
}

// WebhookHandler receives billing provider webhooks.
type WebhookHandler struct {
	reconciler service.WebhookReconciler
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(reconciler service.WebhookReconciler, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// Stripe handles POST /webhooks/stripe. Anything but a 2xx makes the
// provider redeliver, so only failures worth retrying answer 500.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, apierrors.ErrBadRequest.WithMessage("Payload too large"))
			return
		}
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Failed to read body"))
		return
	}

	event, err := h.reconciler.Verify(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		h.logger.Warn("webhook rejected",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		response.Error(w, err)
		return
	}

	outcome, err := h.reconciler.Process(r.Context(), event)
	if err != nil {
		response.Error(w, apierrors.ErrInternal.Wrap(err))
		return
	}

	response.Raw(w, http.StatusOK, WebhookAck{Received: true, Outcome: outcome, EventID: event.ID})
}
