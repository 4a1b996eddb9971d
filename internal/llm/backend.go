package llm

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/paperdigest/internal/retry"
)

// Backend names.
const (
	BackendGroq   = "groq"
	BackendOllama = "ollama"
)

// BackendConfig selects and configures a completion backend.
type BackendConfig struct {
	Backend     string
	Model       string
	GroqBaseURL string
	GroqAPIKeys []string
	OllamaURL   string
	Retry       retry.Policy
}

// NewBackend builds the configured Completer, wrapped so that every call is
// retried on transient failure and recorded in stats.
func NewBackend(cfg BackendConfig, stats *Stats, log *slog.Logger) (Completer, error) {
	var base Completer
	switch cfg.Backend {
	case "", BackendGroq:
		c, err := NewGroqClient(cfg.GroqBaseURL, cfg.Model, NewKeyRing(cfg.GroqAPIKeys))
		if err != nil {
			return nil, err
		}
		base = c
	case BackendOllama:
		c, err := NewOllamaClient(cfg.OllamaURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		base = c
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}

	if stats != nil {
		base = WithStats(base, stats)
	}
	return WithRetry(base, cfg.Retry, log), nil
}
