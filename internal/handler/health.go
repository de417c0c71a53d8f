package handler

import (
	"net/http"

	"github.com/servicechat/console/internal/api"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	transport *api.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(transport *api.Client) *HealthHandler {
	return &HealthHandler{transport: transport}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready by probing the backend.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.transport.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "backend unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
