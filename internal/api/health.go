package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ServiceName is reported by the root health endpoint.
const ServiceName = "Hotel Retention Agent API"

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker checks the reasoning engine.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store   Pinger
	engine  HealthChecker
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store Pinger, engine HealthChecker) *HealthHandler {
	return &HealthHandler{store: store, engine: engine, timeout: 5 * time.Second}
}

// Root returns the liveness body of GET /.
func (h *HealthHandler) Root(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

// Ready reports whether the store and engine are reachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		slog.Error("Readiness check failed", "dependency", "store", "error", err)
		checks["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if h.engine != nil {
		if err := h.engine.Health(ctx); err != nil {
			slog.Error("Readiness check failed", "dependency", "engine", "error", err)
			checks["engine"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["engine"] = "ok"
		}
	}

	if statusCode != http.StatusOK {
		status["status"] = "degraded"
	}
	JSON(w, statusCode, status)
}

// RegisterHealth registers the health routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/readyz", h.Ready)
}
