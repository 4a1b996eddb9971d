package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dgallion1/paperdigest/internal/consult"
	"github.com/dgallion1/paperdigest/internal/llm"
)

var (
	expertFlag   string
	contextFile  string
	questionFlag string
	answerFlag   string
	refsFile     string
	debaters     []string
	rounds       int
)

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Ask a generated or registered expert",
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question as an expert; without --expert one is generated",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctxText, err := readOptional(contextFile)
		if err != nil {
			return err
		}
		return withConsult(cmd, func(ctx context.Context, svc *consult.Service) error {
			ans, err := svc.Ask(ctx, consult.AskRequest{
				SessionID: "cli",
				Question:  strings.Join(args, " "),
				Context:   ctxText,
				Expert:    expertFlag,
			})
			if err != nil {
				return err
			}
			printAnswer(cmd, ans.Expert.Title, ans.Text, ans.Usage)
			return nil
		})
	},
}

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Rewrite an answer as an expert, optionally grounded on references",
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := readOptional(refsFile)
		if err != nil {
			return err
		}
		ctxText, err := readOptional(contextFile)
		if err != nil {
			return err
		}
		return withConsult(cmd, func(ctx context.Context, svc *consult.Service) error {
			ans, err := svc.Refine(ctx, consult.RefineRequest{
				Expert:     expertFlag,
				Question:   questionFlag,
				Context:    ctxText,
				Answer:     answerFlag,
				References: refs,
			})
			if err != nil {
				return err
			}
			printAnswer(cmd, ans.Expert.Title, ans.Text, ans.Usage)
			return nil
		})
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Grade an answer with SWOT, BCG, risk matrix and statistical rubrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctxText, err := readOptional(contextFile)
		if err != nil {
			return err
		}
		return withConsult(cmd, func(ctx context.Context, svc *consult.Service) error {
			ans, err := svc.Evaluate(ctx, consult.EvaluateRequest{
				Expert:   expertFlag,
				Question: questionFlag,
				Context:  ctxText,
				Answer:   answerFlag,
			})
			if err != nil {
				return err
			}
			printAnswer(cmd, ans.Expert.Title, ans.Text, ans.Usage)
			return nil
		})
	},
}

var debateCmd = &cobra.Command{
	Use:   "debate <topic>",
	Short: "Let registered experts debate a topic in turns",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsult(cmd, func(ctx context.Context, svc *consult.Service) error {
			d, err := svc.Debate(ctx, consult.DebateRequest{
				Topic:   strings.Join(args, " "),
				Experts: debaters,
				Rounds:  rounds,
			})
			if d != nil {
				for _, t := range d.Turns {
					printAnswer(cmd, fmt.Sprintf("round %d, %s", t.Round, t.Expert), t.Text, llm.Usage{})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tokens: %d\n", d.Usage.TotalTokens)
			}
			return err
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{askCmd, refineCmd, evaluateCmd} {
		c.Flags().StringVarP(&expertFlag, "expert", "e", "", "Expert title")
		c.Flags().StringVar(&contextFile, "context", "", "File with background context")
	}
	for _, c := range []*cobra.Command{refineCmd, evaluateCmd} {
		c.Flags().StringVarP(&questionFlag, "question", "q", "", "The original question")
		c.Flags().StringVarP(&answerFlag, "answer", "a", "", "The answer to work on")
	}
	refineCmd.Flags().StringVar(&refsFile, "references", "", "File with reference material")
	debateCmd.Flags().StringSliceVarP(&debaters, "expert", "e", nil, "Registered expert (repeat at least twice)")
	debateCmd.Flags().IntVarP(&rounds, "rounds", "r", 1, "Debate rounds (max 5)")

	consultCmd.AddCommand(askCmd, refineCmd, evaluateCmd, debateCmd)
	rootCmd.AddCommand(consultCmd)
}

func withConsult(cmd *cobra.Command, fn func(ctx context.Context, svc *consult.Service) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	a, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Consult)
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func printAnswer(cmd *cobra.Command, who, text string, u llm.Usage) {
	out := cmd.OutOrStdout()
	color.New(color.FgCyan, color.Bold).Fprintf(out, "── %s ──\n", who)
	fmt.Fprintln(out, strings.TrimSpace(text))
	if u.TotalTokens > 0 {
		color.New(color.Faint).Fprintf(out, "tokens: %d\n", u.TotalTokens)
	}
	fmt.Fprintln(out)
}
