package api

import (
	"net/http"
)

// GetRun implements GET /runs/{runId}. Reads are served through a
// short-TTL cache; see Handler.runCache for why that never affects
// correctness.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")

	if cached, ok := h.runCache.Get(runID); ok {
		writeJSON(w, http.StatusOK, cached.(TimelineResponse))
		return
	}

	timeline, err := h.orch.GetTimeline(r.Context(), runID)
	if handleCoreError(w, h.logger, err, "unknown run id: "+runID) {
		return
	}

	resp := TimelineResponse{
		Run:    runDTO(timeline.Run),
		Events: eventDTOs(timeline.Events),
	}
	h.runCache.SetDefault(runID, resp)
	writeJSON(w, http.StatusOK, resp)
}
