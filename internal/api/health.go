package api

import (
	"net/http"

	"github.com/gaspardpetit/chatfront/internal/serverstate"
)

// Health handles GET /health by probing the backend. It answers within the
// backend health timeout even when the backend stalls.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.Backend.Health(r.Context()) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
}

// Healthz reports process liveness without contacting the backend.
func Healthz(w http.ResponseWriter, r *http.Request) {
	if serverstate.IsDraining() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": serverstate.StatusDraining})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
