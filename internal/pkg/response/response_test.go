package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *Meta `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestJSONWithMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONWithMeta(rec, http.StatusOK, []string{"a", "b"}, &Meta{Limit: 2, NextCursor: "b"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decode(t, rec)
	assert.JSONEq(t, `["a","b"]`, string(env.Data))
	require.NotNil(t, env.Meta)
	assert.Equal(t, "b", env.Meta.NextCursor)
	assert.Nil(t, env.Error)
}

func TestError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", apierrors.NewNotFoundError("Plan"), http.StatusNotFound, "not_found"},
		{"validation", apierrors.NewValidationError("feature", "unknown feature"), http.StatusBadRequest, "validation_error"},
		{"plain error hides details", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.NotContains(t, env.Error.Message, "pq:")
		})
	}
}

func TestRaw(t *testing.T) {
	rec := httptest.NewRecorder()
	Raw(rec, http.StatusOK, map[string]any{"received": true})
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
}
