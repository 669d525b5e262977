package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires the inbound/run HTTP surface plus the ambient
// health/metrics endpoints.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("POST /dev/inbound", chain(http.HandlerFunc(h.HandleInbound)))
	mux.Handle("GET /runs/{runId}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("GET /healthz", chain(http.HandlerFunc(h.Healthz)))
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Healthz is a liveness/readiness probe: it reports ok only if the
// configured persistence pool responds to a ping.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "healthz ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
