package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dgallion1/paperdigest/internal/parser"
	"github.com/dgallion1/paperdigest/internal/pipeline"
)

var (
	outPath    string
	maxResults int
)

var digestCmd = &cobra.Command{
	Use:   "digest <file>...",
	Short: "Digest local documents into one report",
	Long: `Digest each file in the order given. The first document written truncates
the report; the others are appended to it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs := make([]pipeline.Input, 0, len(args))
		for _, path := range args {
			if !parser.IsSupportedExtension(path) {
				return fmt.Errorf("unsupported file type: %s", path)
			}
			if _, err := os.Stat(path); err != nil {
				return err
			}
			inputs = append(inputs, pipeline.Input{Path: path, Filename: filepath.Base(path)})
		}
		return runJob(cmd, pipeline.NewJob(inputs))
	},
}

var arxivCmd = &cobra.Command{
	Use:   "arxiv <query>",
	Short: "Search arXiv, download the top hits and digest them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if maxResults <= 0 {
			return fmt.Errorf("--max must be positive")
		}
		return runJob(cmd, pipeline.NewArxivJob(strings.Join(args, " "), maxResults))
	},
}

func init() {
	digestCmd.Flags().StringVarP(&outPath, "out", "o", "", "Report path (default <OUTPUT_DIR>/<job id>.txt)")
	arxivCmd.Flags().StringVarP(&outPath, "out", "o", "", "Report path (default <OUTPUT_DIR>/<job id>.txt)")
	arxivCmd.Flags().IntVarP(&maxResults, "max", "n", 3, "Number of papers to fetch")

	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(arxivCmd)
}

// runJob processes job in the foreground with a progress bar.
func runJob(cmd *cobra.Command, job *pipeline.Job) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if outPath != "" {
		job.SetReportPath(outPath)
	}

	out := cmd.OutOrStdout()
	total := len(job.Inputs())
	if total == 0 {
		total = -1 // arXiv jobs learn their size after the search
	}
	bar := newProgressBar(total, "digesting")
	a.Worker.OnDocument = func(j *pipeline.Job, r pipeline.DocumentResult) {
		if total < 0 {
			total = j.Snapshot().Progress.TotalDocs
			bar.ChangeMax(total)
		}
		bar.Add(1)
		printResult(bar, r)
	}

	a.Worker.Process(ctx, job)
	bar.Finish()

	snap := job.Snapshot()
	fmt.Fprintln(out)
	for _, e := range snap.Progress.Errors {
		color.New(color.FgRed).Fprintf(out, "  %s\n", e)
	}
	switch snap.Status {
	case pipeline.StatusCompleted:
		color.New(color.FgGreen).Fprintf(out, "✓ %d document(s) digested into %s\n", len(snap.Documents), job.ReportPath())
	case pipeline.StatusPartial:
		color.New(color.FgYellow).Fprintf(out, "! partial digest written to %s\n", job.ReportPath())
	default:
		return fmt.Errorf("job %s failed", snap.ID)
	}
	fmt.Fprintf(out, "  tokens: %d prompt, %d completion\n", snap.Usage.PromptTokens, snap.Usage.CompletionTokens)
	return nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printResult(bar *progressbar.ProgressBar, r pipeline.DocumentResult) {
	var status string
	switch r.Status {
	case pipeline.StatusCompleted:
		status = color.GreenString("ok")
	case pipeline.StatusPartial:
		status = color.YellowString("partial")
	default:
		status = color.RedString("failed")
	}
	bar.Clear()
	fmt.Fprintf(os.Stderr, "%-8s %s", status, r.Filename)
	if r.Error != "" {
		fmt.Fprintf(os.Stderr, " (%s)", r.Error)
	}
	fmt.Fprintln(os.Stderr)
}
