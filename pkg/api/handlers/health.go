package handlers

import (
	"net/http"

	"github.com/wayfare/wayfare/pkg/api/response"
	"github.com/wayfare/wayfare/pkg/version"
)

// ReadinessChecker reports whether the service can accept work.
type ReadinessChecker func() bool

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	ready ReadinessChecker
}

// NewHealthHandler creates a health handler. A nil checker means
// always ready.
func NewHealthHandler(ready ReadinessChecker) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil || h.ready() {
		response.JSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	response.JSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
}
