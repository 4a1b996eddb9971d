package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dgallion1/paperdigest/internal/archive"
	"github.com/dgallion1/paperdigest/internal/arxiv"
	"github.com/dgallion1/paperdigest/internal/report"
)

// Fetcher resolves an arXiv query into downloaded PDFs.
type Fetcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]arxiv.Paper, error)
	Download(ctx context.Context, p arxiv.Paper, dir string) (string, error)
}

// Archiver persists finished digests.
type Archiver interface {
	Save(ctx context.Context, r archive.Record) (int64, error)
}

type WorkerConfig struct {
	OutputDir   string
	DownloadDir string
	Model       string
}

// Worker processes a job's documents one at a time into its report.
type Worker struct {
	digester *Digester
	fetcher  Fetcher
	archiver Archiver
	cfg      WorkerConfig
	log      *slog.Logger

	// OnDocument, when set, is called after each document finishes.
	OnDocument func(job *Job, r DocumentResult)
}

// NewWorker builds a worker. fetcher and archiver may be nil.
func NewWorker(d *Digester, fetcher Fetcher, archiver Archiver, cfg WorkerConfig, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{digester: d, fetcher: fetcher, archiver: archiver, cfg: cfg, log: log}
}

// ReportPath is where the report for job is written.
func (w *Worker) ReportPath(job *Job) string {
	return filepath.Join(w.cfg.OutputDir, job.ID+".txt")
}

// Process runs the full digest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID)
	defer job.ReleaseInputs()

	if job.Query != "" {
		if !w.fetch(ctx, job, log) {
			return
		}
	}

	inputs := job.Inputs()
	if len(inputs) == 0 {
		job.AddError("no documents to digest")
		job.SetStatus(StatusFailed, "no_input")
		return
	}

	path := job.ReportPath()
	if path == "" {
		path = w.ReportPath(job)
		job.SetReportPath(path)
	}
	writer := report.NewWriter(path)
	written, partial := 0, false

	for _, in := range inputs {
		if ctx.Err() != nil {
			job.AddError(fmt.Sprintf("cancelled: %s", ctx.Err()))
			break
		}
		r := w.processOne(ctx, job, writer, in, written == 0, log)
		if r.Status != StatusFailed {
			written++
		}
		if r.Status != StatusCompleted {
			partial = true
		}
		job.AddDocument(r)
		if w.OnDocument != nil {
			w.OnDocument(job, r)
		}
	}
	job.SetCurrent("")

	switch {
	case written == 0:
		job.SetStatus(StatusFailed, "done")
	case partial || written < len(inputs):
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
	log.Info("job finished", "documents", len(inputs), "written", written, "report", path)
}

func (w *Worker) processOne(ctx context.Context, job *Job, writer *report.Writer, in Input, first bool, log *slog.Logger) DocumentResult {
	name := in.name()
	job.SetCurrent(name)
	log = log.With("filename", name)

	d, err := w.digester.Digest(ctx, in, func(s JobStatus) { job.SetStatus(s, string(s)+": "+name) })
	if err != nil {
		log.Error("digest failed", "error", err)
		job.AddError(err.Error())
		return DocumentResult{Filename: name, Status: StatusFailed, Error: err.Error()}
	}

	r := DocumentResult{
		Filename:    d.Filename,
		Title:       d.Title,
		Status:      StatusCompleted,
		ContentHash: d.ContentHash,
		Sections:    d.Sections,
		Missing:     d.Missing,
		Usage:       d.Usage,
	}
	if d.Partial() {
		r.Status = StatusPartial
		for _, e := range d.Errors {
			job.AddError(fmt.Sprintf("%s: %s", name, e))
		}
	}

	job.SetStatus(StatusWriting, "writing: "+name)
	if err := writer.Write(d.ReportEntry(), first); err != nil {
		log.Error("report write failed", "error", err)
		job.AddError(fmt.Sprintf("%s: %s", name, err))
		r.Status = StatusFailed
		r.Error = err.Error()
		return r
	}

	if w.archiver != nil {
		if _, err := w.archiver.Save(ctx, d.Record(job.ID, w.cfg.Model)); err != nil {
			log.Warn("archive save failed", "error", err)
			job.AddError(fmt.Sprintf("%s: archive: %s", name, err))
		}
	}
	return r
}

// fetch resolves the job's arXiv query into inputs.
func (w *Worker) fetch(ctx context.Context, job *Job, log *slog.Logger) bool {
	if w.fetcher == nil {
		job.AddError("arxiv fetching is not configured")
		job.SetStatus(StatusFailed, "fetching")
		return false
	}
	job.SetStatus(StatusFetching, "searching arxiv")
	papers, err := w.fetcher.Search(ctx, job.Query, job.MaxResults)
	if err != nil {
		log.Error("arxiv search failed", "error", err)
		job.AddError(fmt.Sprintf("search: %s", err))
		job.SetStatus(StatusFailed, "fetching")
		return false
	}

	var inputs []Input
	for _, p := range papers {
		job.SetStatus(StatusFetching, "downloading "+p.ID)
		path, err := w.fetcher.Download(ctx, p, w.cfg.DownloadDir)
		if err != nil {
			log.Warn("arxiv download failed", "id", p.ID, "error", err)
			job.AddError(fmt.Sprintf("download %s: %s", p.ID, err))
			continue
		}
		inputs = append(inputs, Input{Filename: arxiv.FileName(p.ID), Path: path, Title: p.Title})
	}
	log.Info("arxiv fetch complete", "found", len(papers), "downloaded", len(inputs))
	if len(inputs) == 0 {
		job.AddError("no papers downloaded")
		job.SetStatus(StatusFailed, "fetching")
		return false
	}
	job.SetInputs(inputs)
	return true
}
