package api

import (
	"net/http"
	"runtime"
	"time"
)

// StatsProvider exposes service counters for /stats.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves the provider's counters plus process facts.
type StatsHandler struct {
	provider StatsProvider
	started  time.Time
}

// NewStatsHandler creates a stats handler; uptime counts from now.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider, started: time.Now()}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	out := map[string]any{
		"uptimeSeconds": time.Since(h.started).Seconds(),
		"goroutines":    runtime.NumGoroutine(),
	}
	for k, v := range h.provider.GetStats() {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}
