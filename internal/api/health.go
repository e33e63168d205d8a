package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

const healthCheckTimeout = 3 * time.Second

// BackendChecker reports whether one backend is reachable.
type BackendChecker interface {
	Addr() string
	Health(ctx context.Context) error
}

// BudgetSource exposes per-intent budgets for the config endpoint.
type BudgetSource interface {
	Budget(intent domain.Intent) time.Duration
}

// HealthHandler serves readiness and client configuration.
type HealthHandler struct {
	*Handler
	backends []BackendChecker
	budgets  BudgetSource
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(base *Handler, backends []BackendChecker, budgets BudgetSource) *HealthHandler {
	return &HealthHandler{Handler: base, backends: backends, budgets: budgets}
}

// RegisterRoutes registers health and config routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/config", h.GetConfig)
}

// Health checks the database and every backend. Any failure reports 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	healthy := true
	database := "ok"
	if err := h.repo.Ping(ctx); err != nil {
		slog.Warn("Health check: database unreachable", "error", err)
		database = "unreachable"
		healthy = false
	}

	backends := make(map[string]string, len(h.backends))
	for _, b := range h.backends {
		if err := b.Health(ctx); err != nil {
			slog.Warn("Health check: backend unhealthy", "addr", b.Addr(), "error", err)
			backends[b.Addr()] = "unavailable"
			healthy = false
			continue
		}
		backends[b.Addr()] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	resp := map[string]interface{}{
		"status":   status,
		"database": database,
		"backends": backends,
	}
	if h.sm != nil {
		resp["connections"] = h.sm.Count()
	}
	JSON(w, code, resp)
}

// GetConfig returns the settings the frontend needs, e.g. how long to show
// progress before expecting a fallback.
func (h *HealthHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	budgets := make(map[string]float64)
	if h.budgets != nil {
		for _, intent := range domain.AllIntents() {
			budgets[string(intent)] = h.budgets.Budget(intent).Seconds()
		}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"budget_seconds": budgets,
		"intents":        domain.AllIntents(),
	})
}
