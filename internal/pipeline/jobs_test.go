package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/paperdigest/internal/llm"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	h1 := ContentHashHex([]byte("aaa"))
	h2 := ContentHashHex([]byte("bbb"))
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	// SHA-256 of empty input is well-known.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob([]Input{{Filename: "a.pdf"}})

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing a.pdf"},
		{StatusSectioning, "locating sections"},
		{StatusSummarizing, "summarizing"},
		{StatusWriting, "writing report"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob([]Input{{Filename: "a.pdf"}, {Filename: "b.txt"}})
	if job.Status != StatusQueued {
		t.Errorf("expected queued, got %q", job.Status)
	}
	if !strings.HasPrefix(job.ID, "job_") {
		t.Errorf("expected job_ prefix, got %q", job.ID)
	}
	if job.Progress.TotalDocs != 2 {
		t.Errorf("expected 2 total docs, got %d", job.Progress.TotalDocs)
	}
	if other := NewJob(nil); other.ID == job.ID {
		t.Error("expected unique job ids")
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusPartial} {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusQueued, StatusFetching, StatusSummarizing, StatusWriting} {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("a.pdf: parse failed")
	job.AddError("b.pdf: method: upstream down")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "a.pdf: parse failed" {
		t.Errorf("expected first error %q, got %q", "a.pdf: parse failed", snap.Progress.Errors[0])
	}
}

func TestJob_AddDocument(t *testing.T) {
	job := NewJob(nil)
	job.AddDocument(DocumentResult{Filename: "a", Status: StatusCompleted, Usage: llm.Usage{TotalTokens: 10}})
	job.AddDocument(DocumentResult{Filename: "b", Status: StatusFailed})
	job.AddDocument(DocumentResult{Filename: "c", Status: StatusPartial, Usage: llm.Usage{TotalTokens: 5}})

	snap := job.Snapshot()
	if snap.Progress.DocsProcessed != 3 {
		t.Errorf("expected 3 processed, got %d", snap.Progress.DocsProcessed)
	}
	if snap.Progress.DocsFailed != 1 {
		t.Errorf("expected 1 failed, got %d", snap.Progress.DocsFailed)
	}
	if snap.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", snap.Usage.TotalTokens)
	}
	if snap.Documents[1].Filename != "b" {
		t.Errorf("expected documents in order, got %q second", snap.Documents[1].Filename)
	}
}

func TestJob_SetInputsAndRelease(t *testing.T) {
	job := NewArxivJob("attention", 3)
	job.SetInputs([]Input{{Filename: "x.pdf", Data: []byte("data")}})
	if job.Progress.TotalDocs != 1 {
		t.Errorf("expected 1 total doc, got %d", job.Progress.TotalDocs)
	}
	job.ReleaseInputs()
	if in := job.Inputs(); len(in) != 1 || in[0].Data != nil {
		t.Errorf("expected input kept with data released, got %+v", in)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	running := &Job{ID: "running", Status: StatusSummarizing, UpdatedAt: time.Now()}
	store.Put(expired)
	store.Put(running)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("running") == nil {
		t.Error("expected unfinished job to survive cleanup")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}
}
