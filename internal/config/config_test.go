package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	"PAPERDIGEST_CONFIG", "PORT", "PAPERDIGEST_API_KEY", "LLM_BACKEND", "GROQ_API_KEYS",
	"LLM_MODEL", "LLM_TEMPERATURE", "MAX_OUTPUT_TOKENS", "TOKEN_MARGIN", "WORKER_COUNT",
	"RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY", "RETRY_MAX_DELAY", "SECTION_VOCABULARY", "MEMORY_WINDOW",
	"ARXIV_RATE_INTERVAL", "DATABASE_URL", "OUTPUT_DIR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paperdigest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load(quiet())

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "groq", cfg.LLMBackend)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Model)
	assert.Equal(t, 1024, cfg.MaxOutputTokens)
	assert.Equal(t, 256, cfg.TokenMargin)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 3*time.Second, cfg.ArxivRateInterval)
	assert.Equal(t, 6, cfg.MemoryWindow)
	assert.True(t, cfg.PDFFallbackPdftotext)
	assert.Nil(t, cfg.SectionVocabulary)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
port: "9000"
llm:
  model: mixtral-8x7b-32768
  groq_api_keys: [a, b]
  temperature: 0.4
  token_margin: 0
retry:
  max_attempts: 5
  base_delay: 250ms
sections:
  vocabulary: [Abstract, Summary]
consult:
  memory_window: 2
  experts:
    - title: Statistician
      description: Knows ANOVA.
`)
	t.Setenv("PAPERDIGEST_CONFIG", path)
	t.Setenv("PORT", "9100")
	t.Setenv("GROQ_API_KEYS", " x , ,y ")

	cfg := Load(quiet())
	assert.Equal(t, "9100", cfg.Port, "env wins over file")
	assert.Equal(t, "mixtral-8x7b-32768", cfg.Model)
	assert.Equal(t, []string{"x", "y"}, cfg.GroqAPIKeys)
	assert.InDelta(t, 0.4, cfg.Temperature, 1e-9)
	assert.Equal(t, 0, cfg.TokenMargin, "explicit zero in file is kept")
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, []string{"Abstract", "Summary"}, cfg.SectionVocabulary)
	assert.Equal(t, 2, cfg.MemoryWindow)
	require.Len(t, cfg.Experts, 1)
	assert.Equal(t, "Statistician", cfg.Experts[0].Title)
}

func TestLoadMalformedFileIsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAPERDIGEST_CONFIG", writeFile(t, "llm: [this is: not valid"))

	cfg := Load(quiet())
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Model)
	assert.Equal(t, 1, cfg.WorkerCount)
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAPERDIGEST_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	cfg := Load(quiet())
	assert.Equal(t, "8090", cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"groq without keys", Config{LLMBackend: "groq", Model: "m"}, true},
		{"groq with keys", Config{LLMBackend: "groq", Model: "m", GroqAPIKeys: []string{"k"}}, false},
		{"ollama", Config{LLMBackend: "ollama", Model: "m", OllamaURL: "http://x"}, false},
		{"unknown backend", Config{LLMBackend: "openai", Model: "m"}, true},
		{"bad temperature", Config{LLMBackend: "ollama", Model: "m", OllamaURL: "u", Temperature: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateServerNeedsAPIKey(t *testing.T) {
	cfg := Config{LLMBackend: "ollama", Model: "m", OllamaURL: "u"}
	assert.Error(t, cfg.ValidateServer())
	cfg.APIKey = "secret"
	assert.NoError(t, cfg.ValidateServer())
}

func TestRetryPolicy(t *testing.T) {
	p := Config{RetryMaxAttempts: 4, RetryBaseDelay: time.Second, RetryMaxDelay: 8 * time.Second}.RetryPolicy()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 8*time.Second, p.Backoff(5))
}

func TestLoadClampsRetryAttempts(t *testing.T) {
	tests := []struct {
		env  string
		want int
	}{
		{"0", 3},
		{"-2", 3},
		{"7", 7},
		{"1000", maxRetryAttempts},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("RETRY_MAX_ATTEMPTS", tt.env)
			t.Setenv("RETRY_BASE_DELAY", "20s")
			cfg := Load(quiet())
			assert.Equal(t, tt.want, cfg.RetryMaxAttempts)

			p := cfg.RetryPolicy()
			for attempt := range cfg.RetryMaxAttempts {
				assert.LessOrEqual(t, p.Backoff(attempt), cfg.RetryMaxDelay)
				assert.Positive(t, p.Backoff(attempt))
			}
		})
	}
}
