package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/dgallion1/paperdigest/internal/consult"
	"github.com/dgallion1/paperdigest/internal/llm"
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleConsultAsk(w http.ResponseWriter, r *http.Request) {
	var req consult.AskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	ans, err := s.consult.Ask(r.Context(), req)
	if err != nil {
		s.consultError(w, "ask", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"expert":     ans.Expert,
		"answer":     ans.Text,
		"usage":      ans.Usage,
	})
}

func (s *Server) handleConsultRefine(w http.ResponseWriter, r *http.Request) {
	var req consult.RefineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ans, err := s.consult.Refine(r.Context(), req)
	if err != nil {
		s.consultError(w, "refine", err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleConsultEvaluate(w http.ResponseWriter, r *http.Request) {
	var req consult.EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ans, err := s.consult.Evaluate(r.Context(), req)
	if err != nil {
		s.consultError(w, "evaluate", err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleConsultDebate(w http.ResponseWriter, r *http.Request) {
	var req consult.DebateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.consult.Debate(r.Context(), req)
	if err != nil {
		// Turns spoken before a model failure are still worth returning.
		if d != nil && len(d.Turns) > 0 && !errors.Is(err, consult.ErrInvalid) {
			s.log.Warn("debate ended early", "topic", req.Topic, "turns", len(d.Turns), "error", err)
			writeJSON(w, http.StatusOK, map[string]any{
				"topic": d.Topic,
				"turns": d.Turns,
				"usage": d.Usage,
				"error": err.Error(),
			})
			return
		}
		s.consultError(w, "debate", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListExperts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"experts": s.consult.Registry().List()})
}

// consultError maps consult failures to HTTP status codes.
func (s *Server) consultError(w http.ResponseWriter, op string, err error) {
	var (
		ctxErr   *llm.ContextLengthError
		retryErr *llm.RetryableError
	)
	switch {
	case errors.Is(err, consult.ErrInvalid):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, consult.ErrExpertNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	case errors.As(err, &ctxErr):
		jsonError(w, "input is too long for the model: "+ctxErr.Error(), http.StatusRequestEntityTooLarge)
	case errors.As(err, &retryErr):
		jsonError(w, "model is temporarily unavailable", http.StatusServiceUnavailable)
	default:
		jsonError(w, "model call failed", http.StatusBadGateway)
	}
	s.log.Error("consult failed", "op", op, "error", err)
}
