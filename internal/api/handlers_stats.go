package api

import (
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":       s.model,
		"stats":       s.stats.Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
