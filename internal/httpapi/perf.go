package httpapi

import (
	"net/http"
	"strings"

	"github.com/antoniostano/huddle/internal/apperr"
)

// handlePerfLatency serves the rolling stage latencies. ?stage=<name> narrows
// the answer to one stage.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.TurnStageSnapshot()
	name := strings.TrimSpace(r.URL.Query().Get("stage"))
	if name == "" {
		respondJSON(w, http.StatusOK, snap)
		return
	}
	stage, ok := snap.Stage(name)
	if !ok {
		s.respondErr(w, r, apperr.NotFound("perf.latency", "no samples for stage "+name))
		return
	}
	respondJSON(w, http.StatusOK, stage)
}
