package api

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/conjunct/pkg/metrics"
)

var errNotReady = errors.New("cdm pipeline not running")

// HealthHandler serves liveness, readiness and metrics.
type HealthHandler struct {
	deps Dependencies
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type statusResponse struct {
	Status string `json:"status"`
}

// HandleHealth handles GET /healthz. The process is alive if it answers.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// HandleReady handles GET /readyz.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if !h.deps.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not_ready", errNotReady)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}

// Metrics serves the service's custom Prometheus registry.
func (h *HealthHandler) Metrics() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
