// Package statusapi exposes the kill switch manager's live state over HTTP,
// for the TUI and for external monitoring (health checks, Prometheus scrape).
package statusapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ransomwatch/internal/killswitch"
)

// Handler serves kill switch status endpoints.
type Handler struct {
	mgr       *killswitch.Manager
	startTime time.Time
}

// NewHandler builds a status API handler bound to a running manager.
func NewHandler(mgr *killswitch.Manager) *Handler {
	return &Handler{mgr: mgr, startTime: time.Now()}
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.mgr.IsTriggered() {
		status = "triggered"
	}

	resp := map[string]any{
		"status":         status,
		"triggered":      h.mgr.IsTriggered(),
		"level":          h.mgr.CurrentLevel().String(),
		"threat_count":   len(h.mgr.Threats()),
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}
	respondJSON(w, http.StatusOK, resp)
}

// Threats handles GET /api/threats, returning the manager's in-memory
// threat history (every threat since the last reset, not the durable log).
func (h *Handler) Threats(w http.ResponseWriter, r *http.Request) {
	threats := h.mgr.Threats()
	resp := map[string]any{
		"threats":     threats,
		"total_count": len(threats),
	}
	respondJSON(w, http.StatusOK, resp)
}

// Metrics handles GET /metrics (Prometheus text format).
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	triggered := 0
	if h.mgr.IsTriggered() {
		triggered = 1
	}

	fmt.Fprintf(w, "# HELP ransomwatch_triggered Whether the kill switch is currently triggered\n")
	fmt.Fprintf(w, "# TYPE ransomwatch_triggered gauge\n")
	fmt.Fprintf(w, "ransomwatch_triggered %d\n\n", triggered)

	fmt.Fprintf(w, "# HELP ransomwatch_threat_level Current aggregate threat level (0=none .. 4=critical)\n")
	fmt.Fprintf(w, "# TYPE ransomwatch_threat_level gauge\n")
	fmt.Fprintf(w, "ransomwatch_threat_level %d\n\n", int(h.mgr.CurrentLevel()))

	fmt.Fprintf(w, "# HELP ransomwatch_threats_active Threats recorded by the manager since the last reset\n")
	fmt.Fprintf(w, "# TYPE ransomwatch_threats_active gauge\n")
	fmt.Fprintf(w, "ransomwatch_threats_active %d\n\n", len(h.mgr.Threats()))

	fmt.Fprintf(w, "# HELP ransomwatch_uptime_seconds Uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE ransomwatch_uptime_seconds gauge\n")
	fmt.Fprintf(w, "ransomwatch_uptime_seconds %d\n", int(time.Since(h.startTime).Seconds()))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
