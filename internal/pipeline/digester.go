package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dgallion1/paperdigest/internal/archive"
	"github.com/dgallion1/paperdigest/internal/document"
	"github.com/dgallion1/paperdigest/internal/llm"
	"github.com/dgallion1/paperdigest/internal/parser"
	"github.com/dgallion1/paperdigest/internal/report"
	"github.com/dgallion1/paperdigest/internal/section"
	"github.com/dgallion1/paperdigest/internal/summarize"
)

// Input is one document to digest: a file on disk or uploaded bytes.
type Input struct {
	Filename string
	Path     string
	Data     []byte
	Title    string
}

func (in Input) name() string {
	if in.Filename != "" {
		return in.Filename
	}
	return filepath.Base(in.Path)
}

// Digest is the outcome of one document.
type Digest struct {
	Title       string             `json:"title"`
	Filename    string             `json:"filename"`
	Pages       int                `json:"pages"`
	ContentHash string             `json:"content_hash"`
	Sections    []section.Entry    `json:"sections"`
	Missing     []string           `json:"missing"`
	Results     []summarize.Result `json:"results"`
	Usage       llm.Usage          `json:"usage"`
	Errors      []string           `json:"errors,omitempty"`
}

// Partial reports whether any role failed.
func (d *Digest) Partial() bool {
	return len(d.Errors) > 0
}

// Result returns the result for role, if it ran.
func (d *Digest) Result(role summarize.Role) (summarize.Result, bool) {
	for _, r := range d.Results {
		if r.Role == role {
			return r, true
		}
	}
	return summarize.Result{}, false
}

// ReportEntry converts the digest to its report block.
func (d *Digest) ReportEntry() report.Entry {
	e := report.Entry{
		Title:    d.Title,
		Source:   d.Filename,
		Sections: d.Sections,
		Missing:  d.Missing,
	}
	for _, r := range d.Results {
		e.Blocks = append(e.Blocks, report.Block{Heading: r.Role.Title(), Text: r.Text})
	}
	return e
}

// Record converts the digest to an archive row.
func (d *Digest) Record(jobID, model string) archive.Record {
	r := archive.Record{
		JobID:            jobID,
		Title:            d.Title,
		Filename:         d.Filename,
		Model:            model,
		Sections:         d.Sections,
		Missing:          d.Missing,
		PromptTokens:     d.Usage.PromptTokens,
		CompletionTokens: d.Usage.CompletionTokens,
	}
	for _, res := range d.Results {
		switch res.Role {
		case summarize.RoleSummary:
			r.Summary = res.Text
		case summarize.RoleMethod:
			r.Method = res.Text
		case summarize.RoleConclusion:
			r.Conclusion = res.Text
		}
	}
	return r
}

// Digester runs one document through parse, locate, slice and summarize.
// Roles are summarized one after another.
type Digester struct {
	summarizer *summarize.Summarizer
	vocab      []string
	parserOpts parser.Options
	log        *slog.Logger
}

func NewDigester(s *summarize.Summarizer, vocab []string, opts parser.Options, log *slog.Logger) *Digester {
	if len(vocab) == 0 {
		vocab = section.DefaultVocabulary
	}
	if log == nil {
		log = slog.Default()
	}
	return &Digester{summarizer: s, vocab: vocab, parserOpts: opts, log: log}
}

func (d *Digester) Vocabulary() []string { return d.vocab }

// PhaseFunc is told when the digester moves to a new phase.
type PhaseFunc func(status JobStatus)

// Digest processes in. Parse failures and cancellation are returned as
// errors. A failed role is recorded on the digest and the other roles
// still run.
func (d *Digester) Digest(ctx context.Context, in Input, onPhase PhaseFunc) (*Digest, error) {
	if onPhase == nil {
		onPhase = func(JobStatus) {}
	}
	log := d.log.With("filename", in.name())

	onPhase(StatusParsing)
	doc, err := d.parse(in)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", in.name(), err)
	}
	if in.Title != "" {
		doc.Title = in.Title
	}
	if doc.PageCount() == 0 {
		return nil, fmt.Errorf("parse %s: no extractable text", in.name())
	}

	onPhase(StatusSectioning)
	idx, secs := section.Split(doc, d.vocab)
	out := &Digest{
		Title:       doc.Title,
		Filename:    in.name(),
		Pages:       doc.PageCount(),
		ContentHash: ContentHashHex([]byte(doc.FullText())),
		Sections:    idx.Entries(),
		Missing:     secs.Missing(d.vocab),
	}
	if out.Missing == nil {
		out.Missing = []string{}
	}
	log.Info("sections located", "pages", out.Pages, "located", idx.Len(), "missing", len(out.Missing))

	onPhase(StatusSummarizing)
	for _, role := range summarize.Roles {
		res, err := d.summarizer.Summarize(ctx, role, doc.Title, secs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Error("summarize failed", "role", string(role), "error", err)
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", role, err))
			res.Text = failureText(err)
		}
		out.Usage = out.Usage.Add(res.Usage)
		out.Results = append(out.Results, res)
	}
	return out, nil
}

func (d *Digester) parse(in Input) (*document.Document, error) {
	if in.Data == nil && in.Path != "" {
		doc, err := parser.ParseFile(in.Path, d.parserOpts)
		if err != nil {
			return nil, err
		}
		if in.Filename != "" {
			doc.Filename = in.Filename
		}
		return doc, nil
	}
	p, err := parser.ForFile(in.name(), d.parserOpts)
	if err != nil {
		return nil, err
	}
	return p.Parse(bytes.NewReader(in.Data), in.name())
}

func failureText(err error) string {
	if errors.Is(err, summarize.ErrBudgetExhausted) {
		return "(summary unavailable: section too long for the model)"
	}
	return "(summary unavailable: " + err.Error() + ")"
}
