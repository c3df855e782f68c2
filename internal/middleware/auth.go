package middleware

import (
	"context"
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/response"
)

// DefaultCustomerHeader carries the customer id asserted by the calling
// service.
const DefaultCustomerHeader = "X-Customer-ID"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// CustomerIDKey is the context key for the authenticated customer id.
	CustomerIDKey contextKey = "customer_id"
	// AdminKey marks requests authenticated with the admin token.
	AdminKey contextKey = "admin"
)

// AuthConfig holds authentication middleware configuration. End-user
// sessions are handled upstream; this service only trusts internal callers
// holding a bearer token whose bcrypt hash is configured here.
type AuthConfig struct {
	ServiceTokenHash string
	AdminTokenHash   string
	CustomerHeader   string
}

// TokenVerifier checks bearer tokens against a bcrypt hash. Tokens that
// matched once are remembered by digest so bcrypt runs once per token.
type TokenVerifier struct {
	hash     []byte
	verified sync.Map
}

// NewTokenVerifier creates a verifier. An empty hash rejects every token.
func NewTokenVerifier(hash string) *TokenVerifier {
	return &TokenVerifier{hash: []byte(strings.TrimSpace(hash))}
}

// Verify reports whether token matches the configured hash.
func (v *TokenVerifier) Verify(token string) bool {
	if len(v.hash) == 0 || token == "" {
		return false
	}
	digest := sha256.Sum256([]byte(token))
	if _, ok := v.verified.Load(digest); ok {
		return true
	}
	if bcrypt.CompareHashAndPassword(v.hash, []byte(token)) != nil {
		return false
	}
	v.verified.Store(digest, struct{}{})
	return true
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// ServiceAuth authenticates internal callers and puts the customer id from
// the customer header into the request context.
func ServiceAuth(cfg AuthConfig) func(next http.Handler) http.Handler {
	verifier := NewTokenVerifier(cfg.ServiceTokenHash)
	header := cfg.CustomerHeader
	if header == "" {
		header = DefaultCustomerHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Verify(bearerToken(r)) {
				response.Error(w, apierrors.ErrUnauthorized)
				return
			}

			customerID := strings.TrimSpace(r.Header.Get(header))
			if customerID == "" {
				response.Error(w, apierrors.NewValidationError(header, "customer id header is required"))
				return
			}

			ctx := context.WithValue(r.Context(), CustomerIDKey, customerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuth authenticates operators of the admin endpoints.
func AdminAuth(cfg AuthConfig) func(next http.Handler) http.Handler {
	verifier := NewTokenVerifier(cfg.AdminTokenHash)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Verify(bearerToken(r)) {
				response.Error(w, apierrors.ErrUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), AdminKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCustomerID retrieves the customer id from context.
func GetCustomerID(ctx context.Context) string {
	if v, ok := ctx.Value(CustomerIDKey).(string); ok {
		return v
	}
	return ""
}

// WithCustomerID returns a context carrying customerID.
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, CustomerIDKey, customerID)
}
