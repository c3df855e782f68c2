package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/service"
)

// mockReconciler is a mock implementation of service.WebhookReconciler.
type mockReconciler struct {
	verifyFunc  func(payload []byte, signature string) (*models.WebhookEvent, error)
	processFunc func(ctx context.Context, event *models.WebhookEvent) (string, error)
}

func (m *mockReconciler) Verify(payload []byte, signature string) (*models.WebhookEvent, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(payload, signature)
	}
	return &models.WebhookEvent{ID: "evt_1", Type: models.EventSubscriptionUpdated}, nil
}

func (m *mockReconciler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	_, err := m.Process(ctx, event)
	return err
}

func (m *mockReconciler) Process(ctx context.Context, event *models.WebhookEvent) (string, error) {
	if m.processFunc != nil {
		return m.processFunc(ctx, event)
	}
	return service.OutcomeProcessed, nil
}

func TestWebhookHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		verifyErr  error
		outcome    string
		processErr error
		wantStatus int
	}{
		{"processed", nil, service.OutcomeProcessed, nil, http.StatusOK},
		{"ignored", nil, service.OutcomeIgnored, nil, http.StatusOK},
		{"bad signature", apierrors.NewAuthenticationError("invalid Stripe signature"), "", nil, http.StatusBadRequest},
		{"skipped", nil, service.OutcomeSkipped, nil, http.StatusOK},
		{"duplicate", nil, service.OutcomeDuplicate, nil, http.StatusOK},
		{"storage failure", nil, service.OutcomeFailed, apierrors.NewStorageError("upsert subscription", errors.New("disk full")), http.StatusInternalServerError},
		{"provider unavailable", nil, service.OutcomeFailed, apierrors.ErrServiceUnavailable.Wrap(errors.New("timeout")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSignature string
			h := NewWebhookHandler(&mockReconciler{
				verifyFunc: func(payload []byte, signature string) (*models.WebhookEvent, error) {
					gotSignature = signature
					if tt.verifyErr != nil {
						return nil, tt.verifyErr
					}
					return &models.WebhookEvent{ID: "evt_1", Type: models.EventSubscriptionUpdated}, nil
				},
				processFunc: func(ctx context.Context, event *models.WebhookEvent) (string, error) {
					return tt.outcome, tt.processErr
				},
			}, discardLogger())

			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
			req.Header.Set(SignatureHeader, "t=1,v1=abc")
			rec := httptest.NewRecorder()
			h.Stripe(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "t=1,v1=abc", gotSignature)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"received":true,"outcome":"`+tt.outcome+`","event_id":"evt_1"}`, rec.Body.String())
			}
			assert.NotContains(t, rec.Body.String(), "disk full")
		})
	}
}
