package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/paperdigest/internal/app"
	"github.com/dgallion1/paperdigest/internal/config"
)

var (
	verbose     bool
	backendFlag string
	modelFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "paperdigest",
	Short: "Summarize scientific papers section by section",
	Long: `paperdigest locates the standard sections of a paper (Abstract, Methods,
Conclusion, ...) and asks a language model for a short summary, method and
conclusion digest of each document. Results are written to a plain-text report.

Configuration comes from PAPERDIGEST_CONFIG (YAML) and environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "LLM backend (groq, ollama); overrides LLM_BACKEND")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model name; overrides LLM_MODEL")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// setup loads configuration, applies flag overrides and wires the app.
func setup(ctx context.Context) (*app.App, *slog.Logger, error) {
	log := newLogger()
	cfg := config.Load(log)
	if backendFlag != "" {
		cfg.LLMBackend = backendFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}
