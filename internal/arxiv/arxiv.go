// Package arxiv searches the arXiv export API and downloads paper PDFs.
package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgallion1/paperdigest/internal/retry"
)

const DefaultBaseURL = "http://export.arxiv.org"

// Paper is one search hit.
type Paper struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Authors   []string  `json:"authors"`
	Published time.Time `json:"published"`
	PDFURL    string    `json:"pdf_url"`
}

type Config struct {
	BaseURL  string
	Interval time.Duration // minimum gap between requests; zero disables the limit
	Retry    retry.Policy
	Timeout  time.Duration

	MaxFeedBytes int64 // zero means 10 MiB
	MaxPDFBytes  int64 // zero means 200 MiB
}

// ErrTooLarge is returned when a response body exceeds its size limit.
var ErrTooLarge = errors.New("arxiv: response too large")

// Client talks to arXiv. Every request waits on a shared limiter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	maxFeed    int64
	maxPDF     int64
	log        *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxFeedBytes <= 0 {
		cfg.MaxFeedBytes = 10 << 20
	}
	if cfg.MaxPDFBytes <= 0 {
		cfg.MaxPDFBytes = 200 << 20
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	policy := cfg.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("arxiv request failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		policy:     policy,
		maxFeed:    cfg.MaxFeedBytes,
		maxPDF:     cfg.MaxPDFBytes,
		log:        log,
	}
}

// StatusError is a non-200 reply from arXiv.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("arxiv: %s returned status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

// Search returns up to maxResults papers matching query, by relevance.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("arxiv: empty query")
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	q := url.Values{}
	q.Set("search_query", "all:"+query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "relevance")
	u := c.baseURL + "/api/query?" + q.Encode()

	body, err := retry.Value(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u, c.maxFeed)
	})
	if err != nil {
		return nil, err
	}

	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("arxiv: decode feed: %w", err)
	}

	papers := make([]Paper, 0, len(f.Entries))
	for _, e := range f.Entries {
		papers = append(papers, e.paper())
	}
	c.log.Info("arxiv search", "query", query, "results", len(papers))
	return papers, nil
}

func (e entry) paper() Paper {
	p := Paper{
		ID:      idFromURL(e.ID),
		Title:   collapse(e.Title),
		Summary: collapse(e.Summary),
	}
	for _, a := range e.Authors {
		p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		p.Published = t
	}
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			p.PDFURL = l.Href
			break
		}
	}
	return p
}

// Download saves the paper's PDF as <id>.pdf in dir and returns the path.
// A file that already exists is reused without a request.
func (c *Client) Download(ctx context.Context, p Paper, dir string) (string, error) {
	if p.ID == "" {
		return "", fmt.Errorf("arxiv: paper has no id")
	}
	path := filepath.Join(dir, FileName(p.ID))
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		c.log.Debug("arxiv pdf cached", "id", p.ID, "path", path)
		return path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("arxiv: create download dir: %w", err)
	}

	src := p.PDFURL
	if src == "" {
		src = "https://arxiv.org/pdf/" + p.ID
	}

	data, err := retry.Value(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, src, c.maxPDF)
	})
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("arxiv: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("arxiv: write pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("arxiv: close pdf: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("arxiv: store pdf: %w", err)
	}
	c.log.Info("arxiv pdf downloaded", "id", p.ID, "path", path, "bytes", len(data))
	return path, nil
}

func (c *Client) get(ctx context.Context, u string, limit int64) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: u}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("arxiv: read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, u, limit)
	}
	return data, nil
}

// FileName maps an arXiv id to a safe file name. Old-style ids contain a slash.
func FileName(id string) string {
	return strings.ReplaceAll(id, "/", "_") + ".pdf"
}

func idFromURL(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/abs/"); i >= 0 {
		return s[i+len("/abs/"):]
	}
	return s
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
