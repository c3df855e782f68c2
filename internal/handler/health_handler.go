package handler

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	apierrors "github.com/michelrosettaa/FlowAi-sub000/internal/pkg/errors"
	"github.com/michelrosettaa/FlowAi-sub000/internal/pkg/response"
)

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	deps    map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler creates a health handler probing deps by name.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps, timeout: 2 * time.Second}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "ok"})
}

// Ready handles GET /ready. Every dependency is pinged concurrently.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}

	pingErrs := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			pingErrs[i] = h.deps[name].Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]string, len(names))
	ready := true
	for i, name := range names {
		results[name] = "ok"
		if pingErrs[i] != nil {
			results[name] = "unavailable"
			ready = false
		}
	}

	if !ready {
		response.Error(w, apierrors.ErrServiceUnavailable.WithDetails(results))
		return
	}
	response.OK(w, map[string]any{"status": "ready", "checks": results})
}
