package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/paperdigest/internal/parser"
	"github.com/dgallion1/paperdigest/internal/pipeline"
)

const (
	defaultArxivResults = 5
	maxArxivResults     = 50
	maxBatchFiles       = 20
)

// handleDigest queues every uploaded file as one batch. The files are
// digested in upload order into a single report.
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*maxBatchFiles+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	if len(files) > maxBatchFiles {
		jsonError(w, fmt.Sprintf("too many files (max %d)", maxBatchFiles), http.StatusBadRequest)
		return
	}

	inputs := make([]pipeline.Input, 0, len(files))
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		if !parser.IsSupportedExtension(filename) {
			jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
			return
		}

		f, err := fh.Open()
		if err != nil {
			jsonError(w, "failed to open "+filename, http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		f.Close()
		if err != nil {
			jsonError(w, "failed to read "+filename, http.StatusInternalServerError)
			return
		}
		if int64(len(data)) > s.cfg.MaxUploadBytes {
			jsonError(w, fmt.Sprintf("%s exceeds max size (%d bytes)", filename, s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		inputs = append(inputs, pipeline.Input{Filename: filename, Data: data})
	}

	s.submit(w, pipeline.NewJob(inputs))
}

type arxivRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (s *Server) handleDigestArxiv(w http.ResponseWriter, r *http.Request) {
	var req arxivRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = defaultArxivResults
	}
	if req.MaxResults > maxArxivResults {
		req.MaxResults = maxArxivResults
	}

	s.submit(w, pipeline.NewArxivJob(req.Query, req.MaxResults))
}

func (s *Server) submit(w http.ResponseWriter, job *pipeline.Job) {
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/digest/%s/status", snap.ID),
	})
}

func (s *Server) handleDigestStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleDigestReport serves the job's text report once the job is done.
func (s *Server) handleDigestReport(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	if !snap.Status.Terminal() {
		jsonError(w, fmt.Sprintf("job is still %s", snap.Status), http.StatusConflict)
		return
	}

	data, err := os.ReadFile(job.ReportPath())
	if errors.Is(err, fs.ErrNotExist) {
		jsonError(w, "no report was written for this job", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("read report", "job_id", snap.ID, "error", err)
		jsonError(w, "failed to read report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleListDigests(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		jsonError(w, "digest archive is not configured", http.StatusNotImplemented)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 100)
	}

	records, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("list digests", "error", err)
		jsonError(w, "failed to list digests", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"digests": records})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
