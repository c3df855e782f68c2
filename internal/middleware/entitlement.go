package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/response"
	"github.com/michelrosettaa/FlowAi-sub000/internal/service"
)

// EntitlementChecker is the part of the entitlement service a feature
// gate needs.
type EntitlementChecker interface {
	Check(ctx context.Context, customerID string, feature models.Feature) (*service.Decision, error)
	Consume(ctx context.Context, customerID string, feature models.Feature, amount int64) (*models.FeatureUsage, error)
}

// RequireEntitlement gates a handler behind a feature quota. Denied
// requests get 402 with the upgrade message. One unit is consumed only
// after the wrapped handler answered with a 2xx status. The router mounts
// it for every handler.GatedRoute.
func RequireEntitlement(checker EntitlementChecker, feature models.Feature, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customerID := GetCustomerID(r.Context())
			if customerID == "" {
				response.Error(w, apierrors.ErrUnauthorized)
				return
			}

			decision, err := checker.Check(r.Context(), customerID, feature)
			if err != nil {
				response.Error(w, err)
				return
			}
			if !decision.Allowed {
				response.Error(w, apierrors.ErrQuotaExceeded.WithMessage(decision.Message).WithDetails(decision))
				return
			}

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			if wrapped.status < 200 || wrapped.status >= 300 {
				return
			}
			// The response is already on its way; the request context may be done.
			if _, err := checker.Consume(context.WithoutCancel(r.Context()), customerID, feature, 1); err != nil {
				logger.Error("failed to record usage",
					slog.String("customer_id", customerID),
					slog.String("feature", string(feature)),
					slog.String("error", err.Error()),
				)
			}
		})
	}
}
