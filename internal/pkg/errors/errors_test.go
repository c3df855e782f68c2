package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"nil", nil, "", false},
		{"plain error", cause, KindInternal, true},
		{"authentication", NewAuthenticationError("bad signature"), KindAuthentication, false},
		{"configuration", NewConfigurationError("no plan for price %q", "price_x"), KindConfiguration, false},
		{"not found", NewNotFoundError("Plan"), KindNotFound, false},
		{"storage", NewStorageError("increment usage", cause), KindStorage, true},
		{"validation", NewValidationError("feature", "unknown feature"), KindValidation, false},
		{"wrapped storage", fmt.Errorf("consume: %w", NewStorageError("increment usage", cause)), KindStorage, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Classify(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
		})
	}
}

func TestStorageErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := NewStorageError("upsert subscription", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode)
}

func TestAsAPIError(t *testing.T) {
	notFound := NewNotFoundError("Plan")
	wrapped := fmt.Errorf("checkout: %w", notFound)

	assert.Same(t, notFound, AsAPIError(wrapped))
	assert.Equal(t, ErrInternal, AsAPIError(errors.New("boom")))
	assert.True(t, IsAPIError(wrapped))
	assert.False(t, IsAPIError(errors.New("boom")))
}

func TestWithMessageKeepsKind(t *testing.T) {
	err := ErrBadRequest.WithMessage("Invalid request body")

	assert.Equal(t, KindValidation, Classify(err))
	assert.Equal(t, "Invalid request body", err.Message)
	assert.Equal(t, "Invalid request", ErrBadRequest.Message)
}

func TestIs(t *testing.T) {
	assert.True(t, Is(NewConfigurationError("missing"), KindConfiguration))
	assert.False(t, Is(nil, KindConfiguration))
	assert.False(t, Is(NewNotFoundError("Plan"), KindConfiguration))
}
