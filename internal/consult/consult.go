// Package consult answers free-form questions as a generated expert persona.
// It can refine and evaluate answers and run a multi-expert debate.
package consult

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/paperdigest/internal/llm"
)

// ErrInvalid marks requests rejected before any model call.
var ErrInvalid = errors.New("invalid request")

var ErrEmptyQuestion = fmt.Errorf("%w: question is required", ErrInvalid)

const maxDebateRounds = 5

type Options struct {
	MaxTokens   int
	Temperature float64
}

// Service runs consult flows against a Completer.
type Service struct {
	llm      llm.Completer
	registry *Registry
	memory   *Memory
	opts     Options
	log      *slog.Logger
}

func NewService(c llm.Completer, reg *Registry, mem *Memory, opts Options, log *slog.Logger) *Service {
	if reg == nil {
		reg = NewRegistry()
	}
	if mem == nil {
		mem = NewMemory(6)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{llm: c, registry: reg, memory: mem, opts: opts, log: log}
}

func (s *Service) Registry() *Registry { return s.registry }

type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Context   string `json:"context"`
	Expert    string `json:"expert"`
}

// Answer is a model reply attributed to an expert.
type Answer struct {
	Expert Expert    `json:"expert"`
	Text   string    `json:"text"`
	Usage  llm.Usage `json:"usage"`
}

// Ask answers a question. Without a named expert, a persona is generated
// first and registered.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}
	log := s.log.With("session_id", req.SessionID)
	var usage llm.Usage

	var expert Expert
	if req.Expert != "" {
		e, ok := s.registry.Get(req.Expert)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrExpertNotFound, req.Expert)
		}
		expert = e
	} else {
		resp, err := s.complete(ctx, []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(personaPrompt, req.Question, contextBlock("Context", req.Context))},
		})
		if err != nil {
			return nil, fmt.Errorf("generate expert: %w", err)
		}
		usage = usage.Add(resp.Usage)
		title, desc := parsePersona(resp.Text)
		if title == "" {
			return nil, fmt.Errorf("generate expert: empty persona")
		}
		expert = Expert{Title: title, Description: desc}
		s.registry.Save(expert)
		expert, _ = s.registry.Get(title)
		log.Info("expert generated", "expert", expert.Title)
	}

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemFor(expert)}}
	for _, t := range s.memory.History(req.SessionID) {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Question},
			llm.Message{Role: llm.RoleAssistant, Content: t.Answer},
		)
	}
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(answerPrompt, expert.Title, req.Question, contextBlock("Context", req.Context)),
	})

	resp, err := s.complete(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("answer as %s: %w", expert.Title, err)
	}
	usage = usage.Add(resp.Usage)

	s.memory.Append(req.SessionID, Turn{Question: req.Question, Answer: resp.Text})
	return &Answer{Expert: expert, Text: resp.Text, Usage: usage}, nil
}

type RefineRequest struct {
	Expert     string `json:"expert"`
	Question   string `json:"question"`
	Context    string `json:"context"`
	Answer     string `json:"answer"`
	References string `json:"references"`
}

// Refine rewrites an answer as the expert, using references when given.
func (s *Service) Refine(ctx context.Context, req RefineRequest) (*Answer, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return nil, fmt.Errorf("%w: answer to refine is required", ErrInvalid)
	}
	expert, err := s.expert(req.Expert)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(refinePrompt, expert.Title, req.Question, contextBlock("Context", req.Context), req.Answer)
	if refs := contextBlock("References", req.References); refs != "" {
		prompt += "\n\n" + refs
	} else {
		prompt += noReferencesPrompt
	}

	resp, err := s.complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemFor(expert)},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	return &Answer{Expert: expert, Text: resp.Text, Usage: resp.Usage}, nil
}

type EvaluateRequest struct {
	Expert   string `json:"expert"`
	Question string `json:"question"`
	Context  string `json:"context"`
	Answer   string `json:"answer"`
}

// Evaluate grades an answer with a fixed set of analytic rubrics.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*Answer, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return nil, fmt.Errorf("%w: answer to evaluate is required", ErrInvalid)
	}
	expert, err := s.expert(req.Expert)
	if err != nil {
		return nil, err
	}
	who := expert.Title
	if expert.Description != "" {
		who += ". " + expert.Description
	}

	resp, err := s.complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(evaluatePrompt, who, req.Question, contextBlock("Context", req.Context), req.Answer)},
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return &Answer{Expert: expert, Text: resp.Text, Usage: resp.Usage}, nil
}

type DebateRequest struct {
	Topic   string   `json:"topic"`
	Experts []string `json:"experts"`
	Rounds  int      `json:"rounds"`
}

type DebateTurn struct {
	Round  int    `json:"round"`
	Expert string `json:"expert"`
	Text   string `json:"text"`
}

type Debate struct {
	Topic string       `json:"topic"`
	Turns []DebateTurn `json:"turns"`
	Usage llm.Usage    `json:"usage"`
}

// Debate lets registered experts speak in turn. Each speaker sees the
// transcript so far. A failed turn ends the debate and returns what was said.
func (s *Service) Debate(ctx context.Context, req DebateRequest) (*Debate, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("%w: debate topic is required", ErrInvalid)
	}
	if len(req.Experts) < 2 {
		return nil, fmt.Errorf("%w: a debate needs at least two experts", ErrInvalid)
	}
	experts := make([]Expert, 0, len(req.Experts))
	for _, name := range req.Experts {
		e, ok := s.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrExpertNotFound, name)
		}
		experts = append(experts, e)
	}
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	if rounds > maxDebateRounds {
		rounds = maxDebateRounds
	}

	d := &Debate{Topic: req.Topic}
	for round := 1; round <= rounds; round++ {
		for _, e := range experts {
			resp, err := s.complete(ctx, []llm.Message{
				{Role: llm.RoleSystem, Content: systemFor(e)},
				{Role: llm.RoleUser, Content: fmt.Sprintf(debatePrompt, req.Topic, round, transcript(d.Turns), e.Title)},
			})
			if err != nil {
				return d, fmt.Errorf("debate round %d, %s: %w", round, e.Title, err)
			}
			d.Usage = d.Usage.Add(resp.Usage)
			d.Turns = append(d.Turns, DebateTurn{Round: round, Expert: e.Title, Text: resp.Text})
		}
	}
	return d, nil
}

// expert resolves a title to a registered expert. An unregistered title is
// used as-is so answers from other sessions can still be refined.
func (s *Service) expert(title string) (Expert, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Expert{}, fmt.Errorf("%w: expert is required", ErrInvalid)
	}
	if e, ok := s.registry.Get(title); ok {
		return e, nil
	}
	return Expert{Title: title}, nil
}

func (s *Service) complete(ctx context.Context, msgs []llm.Message) (*llm.Response, error) {
	return s.llm.Complete(ctx, llm.Request{
		Messages:    msgs,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
}

func systemFor(e Expert) string {
	if e.Description == "" {
		return "You are " + e.Title + "."
	}
	return "You are " + e.Title + ". " + e.Description
}

func transcript(turns []DebateTurn) string {
	if len(turns) == 0 {
		return "(no one has spoken yet)\n"
	}
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "[%s, round %d]\n%s\n\n", t.Expert, t.Round, t.Text)
	}
	return sb.String()
}
