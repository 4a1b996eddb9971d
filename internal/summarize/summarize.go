// Package summarize turns located paper sections into role summaries while
// keeping every request inside the model's token budget.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dgallion1/paperdigest/internal/llm"
	"github.com/dgallion1/paperdigest/internal/section"
	"github.com/dgallion1/paperdigest/internal/tokens"
)

// ErrBudgetExhausted means the input still did not fit after truncation.
var ErrBudgetExhausted = errors.New("input exceeds model token budget")

// NotFoundText fills a role whose sections were not located.
const NotFoundText = "(not found in document)"

// EmptySectionText fills a role whose sections were located but hold no text.
const EmptySectionText = "(section empty)"

// Result is the outcome of one role.
type Result struct {
	Role      Role      `json:"role"`
	Sections  []string  `json:"sections"`
	Found     bool      `json:"found"`
	Text      string    `json:"text"`
	Truncated bool      `json:"truncated"`
	Calls     int       `json:"calls"`
	Usage     llm.Usage `json:"usage"`
}

type Config struct {
	Model           string
	ContextWindow   int // zero uses the model table
	MaxOutputTokens int
	Margin          int
	Temperature     float64
}

// Summarizer sends role prompts to a Completer.
type Summarizer struct {
	llm llm.Completer
	est tokens.Estimator
	cfg Config
	log *slog.Logger
}

func New(c llm.Completer, est tokens.Estimator, cfg Config, log *slog.Logger) *Summarizer {
	if est == nil {
		est = tokens.Heuristic{}
	}
	if cfg.Model == "" {
		cfg.Model = c.Model()
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = llm.ContextWindow(cfg.Model)
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1024
	}
	if cfg.Margin < 0 {
		cfg.Margin = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{llm: c, est: est, cfg: cfg, log: log}
}

// Budget is the number of prompt tokens a request may carry.
func (s *Summarizer) Budget() int {
	return s.cfg.ContextWindow - s.cfg.MaxOutputTokens - s.cfg.Margin
}

// Summarize runs one role over the located sections. A role with none of
// its sections present returns a not-found result, and one whose sections
// are all empty returns a found but empty result. Neither calls the model.
func (s *Summarizer) Summarize(ctx context.Context, role Role, title string, secs section.Sections) (Result, error) {
	wanted := make(map[string]bool)
	for _, name := range role.Sections() {
		wanted[name] = true
	}

	var located, used []string
	var sb strings.Builder
	for _, sec := range secs.All() {
		if !wanted[sec.Name] {
			continue
		}
		located = append(located, sec.Name)
		if strings.TrimSpace(sec.Text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(sec.Text)
		used = append(used, sec.Name)
	}

	switch {
	case len(located) == 0:
		return Result{Role: role, Text: NotFoundText}, nil
	case len(used) == 0:
		return Result{Role: role, Sections: located, Found: true, Text: EmptySectionText}, nil
	}

	res, err := s.SummarizeText(ctx, role, title, sb.String())
	res.Sections = used
	return res, err
}

// SummarizeText summarizes arbitrary text in role. Text over the pre-flight
// budget is shrunk first. A context-length rejection shrinks it by the
// reported overage and retries exactly once.
func (s *Summarizer) SummarizeText(ctx context.Context, role Role, title, text string) (Result, error) {
	res := Result{Role: role, Found: true}
	log := s.log.With("role", string(role), "model", s.cfg.Model)

	overhead := s.countMessages(BuildPrompt(role, title, ""))
	avail := s.Budget() - overhead
	if avail <= 0 {
		return res, fmt.Errorf("%s: prompt overhead %d tokens leaves no room: %w", role, overhead, ErrBudgetExhausted)
	}
	if n := s.est.Count(text); n > avail {
		shrunk := shrink(text, float64(avail)/float64(n))
		log.Info("pre-flight truncation", "estimated_tokens", n, "budget", avail,
			"from_chars", len(text), "to_chars", len(shrunk))
		text = shrunk
		res.Truncated = true
	}

	msgs := BuildPrompt(role, title, text)
	resp, err := s.complete(ctx, msgs)
	res.Calls++

	var cle *llm.ContextLengthError
	if errors.As(err, &cle) {
		retryText := s.shrinkForOverage(text, msgs, cle)
		if len(retryText) == 0 || len(retryText) >= len(text) {
			return res, fmt.Errorf("%s: %w: %w", role, ErrBudgetExhausted, err)
		}
		log.Warn("context length exceeded, truncating and retrying once",
			"limit", cle.Limit, "requested", cle.Requested,
			"from_chars", len(text), "to_chars", len(retryText))
		text = retryText
		res.Truncated = true
		resp, err = s.complete(ctx, BuildPrompt(role, title, text))
		res.Calls++
		if errors.As(err, &cle) {
			return res, fmt.Errorf("%s: %w: %w", role, ErrBudgetExhausted, err)
		}
	}
	if err != nil {
		return res, fmt.Errorf("summarize %s: %w", role, err)
	}

	res.Text = resp.Text
	res.Usage = resp.Usage
	return res, nil
}

func (s *Summarizer) complete(ctx context.Context, msgs []llm.Message) (*llm.Response, error) {
	return s.llm.Complete(ctx, llm.Request{
		Messages:    msgs,
		MaxTokens:   s.cfg.MaxOutputTokens,
		Temperature: s.cfg.Temperature,
	})
}

func (s *Summarizer) countMessages(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += s.est.Count(m.Content)
	}
	return n
}

// shrinkForOverage cuts text so the next request lands under the reported
// limit. Real token counts are converted to estimator units using the ratio
// between what the server saw and what was estimated for the same prompt.
func (s *Summarizer) shrinkForOverage(text string, msgs []llm.Message, cle *llm.ContextLengthError) string {
	textEst := s.est.Count(text)
	if textEst == 0 {
		return ""
	}

	overage := cle.Overage(s.cfg.MaxOutputTokens)
	if overage == 0 {
		return shrink(text, 0.75)
	}

	ratio := 1.0
	promptEst := s.countMessages(msgs)
	if observed := cle.PromptTokens(s.cfg.MaxOutputTokens); observed > 0 && promptEst > 0 {
		ratio = float64(observed) / float64(promptEst)
	}
	cut := float64(overage+s.cfg.Margin) / ratio
	keep := 1 - cut/float64(textEst)
	if keep <= 0 {
		return ""
	}
	return shrink(text, keep)
}

// shrink keeps roughly the leading fraction of text, cut back to a word
// boundary. The result is always strictly shorter than text.
func shrink(text string, fraction float64) string {
	if fraction >= 1 {
		fraction = 0.99
	}
	if fraction <= 0 {
		return ""
	}
	runes := []rune(text)
	keep := int(float64(len(runes)) * fraction)
	if keep >= len(runes) {
		keep = len(runes) - 1
	}
	if keep <= 0 {
		return ""
	}
	cut := keep
	for cut > keep/2 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut <= keep/2 {
		cut = keep
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
}
