package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/paperdigest/internal/llm"
	"github.com/dgallion1/paperdigest/internal/section"
)

// JobStatus represents the state of a digest job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusFetching    JobStatus = "fetching"
	StatusParsing     JobStatus = "parsing"
	StatusSectioning  JobStatus = "sectioning"
	StatusSummarizing JobStatus = "summarizing"
	StatusWriting     JobStatus = "writing"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusPartial     JobStatus = "partial"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

// Job tracks one batch of documents digested into a single report.
type Job struct {
	mu sync.Mutex

	ID     string    `json:"job_id"`
	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	// Query is set for arXiv jobs; the inputs are fetched before digesting.
	Query      string `json:"query,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`

	Progress  Progress         `json:"progress"`
	Documents []DocumentResult `json:"documents"`
	Usage     llm.Usage        `json:"usage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	inputs     []Input
	errors     []string
	reportPath string
}

// Progress tracks processing progress.
type Progress struct {
	TotalDocs     int      `json:"total_docs"`
	DocsProcessed int      `json:"docs_processed"`
	DocsFailed    int      `json:"docs_failed"`
	Current       string   `json:"current,omitempty"`
	Errors        []string `json:"errors"`
}

// DocumentResult is the per-document outcome recorded on a job.
type DocumentResult struct {
	Filename    string          `json:"filename"`
	Title       string          `json:"title"`
	Status      JobStatus       `json:"status"`
	ContentHash string          `json:"content_hash,omitempty"`
	Sections    []section.Entry `json:"sections"`
	Missing     []string        `json:"missing"`
	Usage       llm.Usage       `json:"usage"`
	Error       string          `json:"error,omitempty"`
}

// NewJob creates a queued job for inputs, processed in the given order.
func NewJob(inputs []Input) *Job {
	now := time.Now()
	return &Job{
		ID:        newJobID(),
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		inputs:    inputs,
		Progress:  Progress{TotalDocs: len(inputs)},
	}
}

// NewArxivJob creates a queued job whose inputs come from an arXiv search.
func NewArxivJob(query string, maxResults int) *Job {
	j := NewJob(nil)
	j.Query = query
	j.MaxResults = maxResults
	return j
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetInputs replaces the inputs; used once an arXiv search has resolved.
func (j *Job) SetInputs(inputs []Input) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inputs = inputs
	j.Progress.TotalDocs = len(inputs)
	j.UpdatedAt = time.Now()
}

// Inputs returns a copy of the job's inputs.
func (j *Job) Inputs() []Input {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Input, len(j.inputs))
	copy(out, j.inputs)
	return out
}

// SetCurrent records which document is being processed.
func (j *Job) SetCurrent(filename string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Current = filename
	j.UpdatedAt = time.Now()
}

// AddDocument records a finished document and rolls up its usage.
func (j *Job) AddDocument(r DocumentResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Documents = append(j.Documents, r)
	j.Progress.DocsProcessed++
	if r.Status == StatusFailed {
		j.Progress.DocsFailed++
	}
	j.Usage = j.Usage.Add(r.Usage)
	j.UpdatedAt = time.Now()
}

func (j *Job) SetReportPath(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reportPath = path
}

// ReportPath is the job's report file, empty until one is assigned.
func (j *Job) ReportPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reportPath
}

// ReleaseInputs drops in-memory file data once the job is finished.
func (j *Job) ReleaseInputs() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.inputs {
		j.inputs[i].Data = nil
	}
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string           `json:"job_id"`
	Status    JobStatus        `json:"status"`
	Phase     string           `json:"phase"`
	Query     string           `json:"query,omitempty"`
	Progress  Progress         `json:"progress"`
	Documents []DocumentResult `json:"documents"`
	Usage     llm.Usage        `json:"usage"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	docs := make([]DocumentResult, len(j.Documents))
	copy(docs, j.Documents)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:        j.ID,
		Status:    j.Status,
		Phase:     j.Phase,
		Query:     j.Query,
		Progress:  p,
		Documents: docs,
		Usage:     j.Usage,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
