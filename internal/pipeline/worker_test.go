package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/paperdigest/internal/archive"
	"github.com/dgallion1/paperdigest/internal/arxiv"
	"github.com/dgallion1/paperdigest/internal/config"
	"github.com/dgallion1/paperdigest/internal/llm"
	"github.com/dgallion1/paperdigest/internal/parser"
	"github.com/dgallion1/paperdigest/internal/section"
	"github.com/dgallion1/paperdigest/internal/summarize"
)

// fakeLLM answers with the first heading it sees in the user prompt.
type fakeLLM struct {
	mu    sync.Mutex
	calls int
	fail  string // fail prompts containing this text
}

func (f *fakeLLM) Model() string { return "llama3-8b-8192" }

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	user := req.Messages[len(req.Messages)-1].Content
	if f.fail != "" && strings.Contains(user, f.fail) {
		return nil, errors.New("upstream exploded")
	}
	body := user[strings.LastIndex(user, "---\n")+4:]
	return &llm.Response{
		Text:  "digest: " + strings.Fields(body)[0],
		Usage: llm.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
	}, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	recs []archive.Record
}

func (a *fakeArchive) Save(_ context.Context, r archive.Record) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, r)
	return int64(len(a.recs)), nil
}

const paper = "Abstract\nWe propose a thing.\nIntroduction\nThings matter.\f" +
	"Methods\nWe built the thing.\f" +
	"Conclusion\nThe thing works."

const noConclusion = "Abstract\nShort note.\fMethods\nWe measured."

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T, c llm.Completer, fetcher Fetcher, arch Archiver) *Worker {
	t.Helper()
	s := summarize.New(c, nil, summarize.Config{MaxOutputTokens: 256, Margin: 64}, quietLog())
	d := NewDigester(s, nil, parser.Options{}, quietLog())
	return NewWorker(d, fetcher, arch, WorkerConfig{
		OutputDir:   filepath.Join(t.TempDir(), "reports"),
		DownloadDir: filepath.Join(t.TempDir(), "papers"),
		Model:       c.Model(),
	}, quietLog())
}

func readReport(t *testing.T, job *Job) string {
	t.Helper()
	data, err := os.ReadFile(job.ReportPath())
	require.NoError(t, err)
	return string(data)
}

func TestDigesterThreePagePaper(t *testing.T) {
	fake := &fakeLLM{}
	s := summarize.New(fake, nil, summarize.Config{}, quietLog())
	d := NewDigester(s, nil, parser.Options{}, quietLog())

	var phases []JobStatus
	dg, err := d.Digest(context.Background(), Input{Filename: "paper.txt", Data: []byte(paper)}, func(s JobStatus) {
		phases = append(phases, s)
	})
	require.NoError(t, err)

	assert.Equal(t, []JobStatus{StatusParsing, StatusSectioning, StatusSummarizing}, phases)
	assert.Equal(t, 3, dg.Pages)
	assert.Equal(t, []section.Entry{
		{Name: "Abstract", Page: 1}, {Name: "Introduction", Page: 1},
		{Name: "Methods", Page: 2}, {Name: "Conclusion", Page: 3},
	}, dg.Sections)
	assert.Contains(t, dg.Missing, "Results")
	assert.NotEmpty(t, dg.ContentHash)
	assert.False(t, dg.Partial())

	sum, ok := dg.Result(summarize.RoleSummary)
	require.True(t, ok)
	assert.Equal(t, "digest: Abstract", sum.Text)
	meth, _ := dg.Result(summarize.RoleMethod)
	assert.Equal(t, "digest: Methods", meth.Text)
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, 30, dg.Usage.TotalTokens)

	rec := dg.Record("job-1", "m")
	assert.Equal(t, "digest: Conclusion", rec.Conclusion)
	assert.Equal(t, 21, rec.PromptTokens)
}

func TestDigesterMissingRoleMakesNoCall(t *testing.T) {
	fake := &fakeLLM{}
	s := summarize.New(fake, nil, summarize.Config{}, quietLog())
	d := NewDigester(s, nil, parser.Options{}, quietLog())

	dg, err := d.Digest(context.Background(), Input{Filename: "note.txt", Data: []byte(noConclusion)}, nil)
	require.NoError(t, err)
	concl, _ := dg.Result(summarize.RoleConclusion)
	assert.False(t, concl.Found)
	assert.Equal(t, summarize.NotFoundText, concl.Text)
	assert.Equal(t, 2, fake.calls)
}

func TestDigesterRoleFailureIsPartial(t *testing.T) {
	fake := &fakeLLM{fail: "Methods"}
	s := summarize.New(fake, nil, summarize.Config{}, quietLog())
	d := NewDigester(s, nil, parser.Options{}, quietLog())

	dg, err := d.Digest(context.Background(), Input{Filename: "paper.txt", Data: []byte(paper)}, nil)
	require.NoError(t, err)
	assert.True(t, dg.Partial())
	meth, _ := dg.Result(summarize.RoleMethod)
	assert.Contains(t, meth.Text, "summary unavailable")
	concl, _ := dg.Result(summarize.RoleConclusion)
	assert.Equal(t, "digest: Conclusion", concl.Text, "later roles still run")
}

func TestDigesterRejectsUnsupported(t *testing.T) {
	s := summarize.New(&fakeLLM{}, nil, summarize.Config{}, quietLog())
	d := NewDigester(s, nil, parser.Options{}, quietLog())
	_, err := d.Digest(context.Background(), Input{Filename: "table.csv", Data: []byte("a,b")}, nil)
	assert.Error(t, err)
}

func TestWorkerBatchWritesOneReportInOrder(t *testing.T) {
	arch := &fakeArchive{}
	w := newTestWorker(t, &fakeLLM{}, nil, arch)

	job := NewJob([]Input{
		{Filename: "first.txt", Data: []byte(paper)},
		{Filename: "broken.csv", Data: []byte("x")},
		{Filename: "second.txt", Data: []byte(noConclusion), Title: "Second Paper"},
	})
	// Leftovers from an earlier run with the same path must be replaced.
	require.NoError(t, os.MkdirAll(filepath.Dir(w.ReportPath(job)), 0o755))
	require.NoError(t, os.WriteFile(w.ReportPath(job), []byte("stale\n"), 0o644))

	var seen []string
	w.OnDocument = func(_ *Job, r DocumentResult) { seen = append(seen, r.Filename) }
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusPartial, snap.Status)
	assert.Equal(t, 3, snap.Progress.DocsProcessed)
	assert.Equal(t, 1, snap.Progress.DocsFailed)
	assert.Equal(t, []string{"first.txt", "broken.csv", "second.txt"}, seen)
	assert.Equal(t, 50, snap.Usage.TotalTokens)

	got := readReport(t, job)
	assert.NotContains(t, got, "stale")
	assert.True(t, strings.HasPrefix(got, "==== first ===="))
	second := strings.Index(got, "==== Second Paper ====")
	assert.Greater(t, second, 0)
	assert.Contains(t, got[second:], "## Conclusion\n(not found in document)")

	require.Len(t, arch.recs, 2)
	assert.Equal(t, job.ID, arch.recs[0].JobID)
	assert.Nil(t, job.Inputs()[0].Data, "file data released after processing")
}

func TestWorkerAllFailed(t *testing.T) {
	w := newTestWorker(t, &fakeLLM{}, nil, nil)
	job := NewJob([]Input{{Filename: "a.csv", Data: []byte("x")}})
	w.Process(context.Background(), job)
	assert.Equal(t, StatusFailed, job.Snapshot().Status)
}

func TestWorkerNoInputs(t *testing.T) {
	w := newTestWorker(t, &fakeLLM{}, nil, nil)
	job := NewJob(nil)
	w.Process(context.Background(), job)
	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Progress.Errors)
}

type fakeFetcher struct {
	papers []arxiv.Paper
	failID string
}

func (f *fakeFetcher) Search(_ context.Context, query string, maxResults int) ([]arxiv.Paper, error) {
	if query == "boom" {
		return nil, errors.New("search down")
	}
	return f.papers, nil
}

func (f *fakeFetcher) Download(_ context.Context, p arxiv.Paper, dir string) (string, error) {
	if p.ID == f.failID {
		return "", errors.New("404")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, arxiv.FileName(p.ID)+".txt")
	return path, os.WriteFile(path, []byte(paper), 0o644)
}

func TestWorkerArxivJob(t *testing.T) {
	fetch := &fakeFetcher{
		papers: []arxiv.Paper{{ID: "2101.00001", Title: "Found Paper"}, {ID: "2101.00002"}},
		failID: "2101.00002",
	}
	w := newTestWorker(t, &fakeLLM{}, fetch, nil)

	job := NewArxivJob("things", 2)
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	require.Len(t, snap.Documents, 1, "%+v", snap)
	assert.Equal(t, "Found Paper", snap.Documents[0].Title)
	assert.Equal(t, "2101.00001.pdf", snap.Documents[0].Filename)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Len(t, snap.Progress.Errors, 1, "failed download is reported")
}

func TestWorkerArxivSearchFailure(t *testing.T) {
	w := newTestWorker(t, &fakeLLM{}, &fakeFetcher{}, nil)
	job := NewArxivJob("boom", 1)
	w.Process(context.Background(), job)
	assert.Equal(t, StatusFailed, job.Snapshot().Status)
}

func TestWorkerArxivWithoutFetcher(t *testing.T) {
	w := newTestWorker(t, &fakeLLM{}, nil, nil)
	job := NewArxivJob("x", 1)
	w.Process(context.Background(), job)
	assert.Equal(t, StatusFailed, job.Snapshot().Status)
}

func TestOrchestratorRunsSubmittedJob(t *testing.T) {
	w := newTestWorker(t, &fakeLLM{}, nil, nil)
	o := NewOrchestrator(config.Config{WorkerCount: 1, MaxQueueSize: 2, JobTTL: time.Hour}, w, quietLog())
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob([]Input{{Filename: "p.txt", Data: []byte(paper)}})
	require.NoError(t, o.Submit(job))
	assert.Same(t, job, o.GetJob(job.ID))
	assert.NotEmpty(t, job.ReportPath())

	require.Eventually(t, func() bool {
		return job.Snapshot().Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StatusCompleted, job.Snapshot().Status)
	assert.FileExists(t, job.ReportPath())
}

func TestOrchestratorQueueFull(t *testing.T) {
	w := newTestWorker(t, &fakeLLM{}, nil, nil)
	// Not started, so nothing drains the queue.
	o := NewOrchestrator(config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}, w, quietLog())

	require.NoError(t, o.Submit(NewJob(nil)))
	full := NewJob(nil)
	assert.Error(t, o.Submit(full))
	assert.Equal(t, StatusFailed, full.Snapshot().Status)
	assert.Equal(t, 1, o.QueueDepth())
}
