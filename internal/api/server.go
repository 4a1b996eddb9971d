package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/paperdigest/internal/archive"
	"github.com/dgallion1/paperdigest/internal/config"
	"github.com/dgallion1/paperdigest/internal/consult"
	"github.com/dgallion1/paperdigest/internal/llm"
	"github.com/dgallion1/paperdigest/internal/pipeline"
)

// DigestArchive lists archived digests.
type DigestArchive interface {
	Recent(ctx context.Context, limit int) ([]archive.Record, error)
}

// Server is the HTTP API server for paperdigest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	consult      *consult.Service
	stats        *llm.Stats
	archive      DigestArchive
	model        string
	log          *slog.Logger
	cfg          config.Config
}

// Deps are the collaborators the server routes to. Archive may be nil.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Consult      *consult.Service
	Stats        *llm.Stats
	Archive      DigestArchive
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: deps.Orchestrator,
		consult:      deps.Consult,
		stats:        deps.Stats,
		archive:      deps.Archive,
		model:        cfg.Model,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/digest", s.handleDigest)
		r.Post("/api/digest/arxiv", s.handleDigestArxiv)
		r.Get("/api/digest/{jobID}/status", s.handleDigestStatus)
		r.Get("/api/digest/{jobID}/report", s.handleDigestReport)
		r.Get("/api/digests", s.handleListDigests)

		r.Post("/api/consult", s.handleConsultAsk)
		r.Post("/api/consult/refine", s.handleConsultRefine)
		r.Post("/api/consult/evaluate", s.handleConsultEvaluate)
		r.Post("/api/consult/debate", s.handleConsultDebate)
		r.Get("/api/consult/experts", s.handleListExperts)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
