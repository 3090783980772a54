package handler

import (
	"net/http"
)

// ReadinessChecker reports whether a backing dependency is usable.
type ReadinessChecker interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store      ReadinessChecker
	configured func() bool
}

// NewHealthHandler creates a new health handler. store may be nil when thread
// history is kept in memory.
func NewHealthHandler(store ReadinessChecker, configured func() bool) *HealthHandler {
	return &HealthHandler{
		store:      store,
		configured: configured,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil && !h.store.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	if h.configured != nil && !h.configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "assistant is not configured",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
