// Package app wires configuration into the digest pipeline and the consult
// service. Both the HTTP server and the CLI build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/paperdigest/internal/archive"
	"github.com/dgallion1/paperdigest/internal/arxiv"
	"github.com/dgallion1/paperdigest/internal/config"
	"github.com/dgallion1/paperdigest/internal/consult"
	"github.com/dgallion1/paperdigest/internal/llm"
	"github.com/dgallion1/paperdigest/internal/parser"
	"github.com/dgallion1/paperdigest/internal/pipeline"
	"github.com/dgallion1/paperdigest/internal/summarize"
	"github.com/dgallion1/paperdigest/internal/tokens"
)

// App holds the wired components.
type App struct {
	Config  config.Config
	LLM     llm.Completer
	Stats   *llm.Stats
	Worker  *pipeline.Worker
	Arxiv   *arxiv.Client
	Archive *archive.Store // nil unless DATABASE_URL is set
	Consult *consult.Service
}

// New builds every component from cfg. The archive is opened only when a
// database URL is configured.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	stats := llm.NewStats(time.Hour)
	c, err := llm.NewBackend(llm.BackendConfig{
		Backend:     cfg.LLMBackend,
		Model:       cfg.Model,
		GroqBaseURL: cfg.GroqBaseURL,
		GroqAPIKeys: cfg.GroqAPIKeys,
		OllamaURL:   cfg.OllamaURL,
		Retry:       cfg.RetryPolicy(),
	}, stats, log)
	if err != nil {
		return nil, fmt.Errorf("llm backend: %w", err)
	}

	est, err := tokens.ForName(cfg.Tokenizer, cfg.Model)
	if err != nil {
		return nil, err
	}
	s := summarize.New(c, est, summarize.Config{
		Model:           cfg.Model,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Margin:          cfg.TokenMargin,
		Temperature:     cfg.Temperature,
	}, log)
	d := pipeline.NewDigester(s, cfg.SectionVocabulary, parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext}, log)

	a := &App{
		Config: cfg,
		LLM:    c,
		Stats:  stats,
		Arxiv: arxiv.NewClient(arxiv.Config{
			BaseURL:  cfg.ArxivBaseURL,
			Interval: cfg.ArxivRateInterval,
			Retry:    cfg.RetryPolicy(),
		}, log),
	}

	var archiver pipeline.Archiver
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("digest archive: %w", err)
		}
		a.Archive = store
		archiver = store
		log.Info("digest archive enabled")
	}

	a.Worker = pipeline.NewWorker(d, a.Arxiv, archiver, pipeline.WorkerConfig{
		OutputDir:   cfg.OutputDir,
		DownloadDir: cfg.DownloadDir,
		Model:       cfg.Model,
	}, log)

	seeds := make([]consult.Expert, 0, len(cfg.Experts))
	for _, e := range cfg.Experts {
		seeds = append(seeds, consult.Expert{Title: e.Title, Description: e.Description})
	}
	a.Consult = consult.NewService(c, consult.NewRegistry(seeds...), consult.NewMemory(cfg.MemoryWindow), consult.Options{
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
	}, log)

	return a, nil
}

// Close releases the archive connection pool.
func (a *App) Close() {
	if a.Archive != nil {
		a.Archive.Close()
	}
}
