package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/paperdigest/internal/retry"
)

const maxRetryAttempts = 10

type Config struct {
	Port string

	// Auth
	APIKey string

	// Optional YAML file; environment variables override its values.
	ConfigPath string

	// LLM backend
	LLMBackend      string
	GroqAPIKeys     []string
	GroqBaseURL     string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	TokenMargin     int
	Tokenizer       string
	OllamaURL       string

	// Retry policy for external calls
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Output
	OutputDir   string
	DownloadDir string

	// Sectioning
	SectionVocabulary []string

	// PDF
	PDFFallbackPdftotext bool

	// arXiv
	ArxivBaseURL      string
	ArxivRateInterval time.Duration

	// Optional Postgres archive
	DatabaseURL string

	// Consult
	MemoryWindow int
	Experts      []ExpertSeed
}

// ExpertSeed preloads a consult expert from the config file.
type ExpertSeed struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// fileConfig mirrors the YAML layout. Zero values mean "not set".
type fileConfig struct {
	Port string `yaml:"port"`
	LLM  struct {
		Backend         string   `yaml:"backend"`
		GroqAPIKeys     []string `yaml:"groq_api_keys"`
		GroqBaseURL     string   `yaml:"groq_base_url"`
		Model           string   `yaml:"model"`
		Temperature     *float64 `yaml:"temperature"`
		MaxOutputTokens int      `yaml:"max_output_tokens"`
		TokenMargin     *int     `yaml:"token_margin"`
		Tokenizer       string   `yaml:"tokenizer"`
		OllamaURL       string   `yaml:"ollama_url"`
	} `yaml:"llm"`
	Retry struct {
		MaxAttempts int    `yaml:"max_attempts"`
		BaseDelay   string `yaml:"base_delay"`
		MaxDelay    string `yaml:"max_delay"`
	} `yaml:"retry"`
	Workers struct {
		Count        int    `yaml:"count"`
		MaxQueueSize int    `yaml:"max_queue_size"`
		JobTTL       string `yaml:"job_ttl"`
	} `yaml:"workers"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	OutputDir      string `yaml:"output_dir"`
	DownloadDir    string `yaml:"download_dir"`
	Sections       struct {
		Vocabulary []string `yaml:"vocabulary"`
	} `yaml:"sections"`
	PDFFallbackPdftotext *bool `yaml:"pdf_fallback_pdftotext"`
	Arxiv                struct {
		BaseURL      string `yaml:"base_url"`
		RateInterval string `yaml:"rate_interval"`
	} `yaml:"arxiv"`
	DatabaseURL string `yaml:"database_url"`
	Consult     struct {
		MemoryWindow *int         `yaml:"memory_window"`
		Experts      []ExpertSeed `yaml:"experts"`
	} `yaml:"consult"`
}

// Load builds the configuration from defaults, the optional YAML file named
// by PAPERDIGEST_CONFIG, and environment variables, in increasing priority.
// An unreadable or malformed file is logged and treated as empty.
func Load(log *slog.Logger) Config {
	if log == nil {
		log = slog.Default()
	}
	path := os.Getenv("PAPERDIGEST_CONFIG")
	f, err := readFile(path)
	if err != nil {
		log.Warn("ignoring config file", "path", path, "error", err)
		f = fileConfig{}
	}

	cfg := Config{
		Port:       envOr("PORT", strOr(f.Port, "8090")),
		APIKey:     os.Getenv("PAPERDIGEST_API_KEY"),
		ConfigPath: path,

		LLMBackend:      strings.ToLower(envOr("LLM_BACKEND", strOr(f.LLM.Backend, "groq"))),
		GroqAPIKeys:     envList("GROQ_API_KEYS", f.LLM.GroqAPIKeys),
		GroqBaseURL:     envOr("GROQ_BASE_URL", strOr(f.LLM.GroqBaseURL, "https://api.groq.com/openai/v1")),
		Model:           envOr("LLM_MODEL", strOr(f.LLM.Model, "llama-3.3-70b-versatile")),
		Temperature:     envFloat("LLM_TEMPERATURE", derefOr(f.LLM.Temperature, 0)),
		MaxOutputTokens: envInt("MAX_OUTPUT_TOKENS", intOr(f.LLM.MaxOutputTokens, 1024)),
		TokenMargin:     envInt("TOKEN_MARGIN", derefOr(f.LLM.TokenMargin, 256)),
		Tokenizer:       envOr("TOKENIZER", strOr(f.LLM.Tokenizer, "heuristic")),
		OllamaURL:       envOr("OLLAMA_URL", strOr(f.LLM.OllamaURL, "http://localhost:11434")),

		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", intOr(f.Retry.MaxAttempts, 3)),
		RetryBaseDelay:   envDuration("RETRY_BASE_DELAY", durOr(f.Retry.BaseDelay, time.Second)),
		RetryMaxDelay:    envDuration("RETRY_MAX_DELAY", durOr(f.Retry.MaxDelay, 30*time.Second)),

		WorkerCount:  envInt("WORKER_COUNT", intOr(f.Workers.Count, 1)),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", intOr(f.Workers.MaxQueueSize, 100)),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", int64Or(f.MaxUploadBytes, 52428800)), // 50MB

		JobTTL: envDuration("JOB_TTL", durOr(f.Workers.JobTTL, time.Hour)),

		OutputDir:   envOr("OUTPUT_DIR", strOr(f.OutputDir, "./reports")),
		DownloadDir: envOr("DOWNLOAD_DIR", strOr(f.DownloadDir, "./papers")),

		SectionVocabulary: envList("SECTION_VOCABULARY", f.Sections.Vocabulary),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", derefOr(f.PDFFallbackPdftotext, true)),

		ArxivBaseURL:      envOr("ARXIV_BASE_URL", strOr(f.Arxiv.BaseURL, "http://export.arxiv.org")),
		ArxivRateInterval: envDuration("ARXIV_RATE_INTERVAL", durOr(f.Arxiv.RateInterval, 3*time.Second)),

		DatabaseURL: envOr("DATABASE_URL", f.DatabaseURL),

		MemoryWindow: envInt("MEMORY_WINDOW", derefOr(f.Consult.MemoryWindow, 6)),
		Experts:      f.Consult.Experts,
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1024
	}
	if cfg.TokenMargin < 0 {
		cfg.TokenMargin = 0
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryMaxAttempts > maxRetryAttempts {
		cfg.RetryMaxAttempts = maxRetryAttempts
	}
	if cfg.MemoryWindow < 0 {
		cfg.MemoryWindow = 0
	}

	return cfg
}

// Validate checks what every entry point needs: usable LLM settings.
func (c Config) Validate() error {
	switch c.LLMBackend {
	case "groq":
		if len(c.GroqAPIKeys) == 0 {
			return fmt.Errorf("GROQ_API_KEYS is required for the groq backend")
		}
	case "ollama":
		if c.OllamaURL == "" {
			return fmt.Errorf("OLLAMA_URL is required for the ollama backend")
		}
	default:
		return fmt.Errorf("LLM_BACKEND must be groq or ollama, got %q", c.LLMBackend)
	}
	if c.Model == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	return nil
}

// ValidateServer adds the checks only the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("PAPERDIGEST_API_KEY is required")
	}
	return nil
}

// RetryPolicy returns the policy for calls to external services.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.RetryMaxAttempts
	p.BaseDelay = c.RetryBaseDelay
	p.MaxDelay = c.RetryMaxDelay
	return p
}

func readFile(path string) (fileConfig, error) {
	var f fileConfig
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	return f, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func strOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func intOr(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func int64Or(v, fallback int64) int64 {
	if v != 0 {
		return v
	}
	return fallback
}

func derefOr[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}

func durOr(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
