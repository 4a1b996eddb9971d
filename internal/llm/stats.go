package llm

import (
	"context"
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
	usage      Usage
	failed     bool
}

// StatsSnapshot is a point-in-time aggregate of LLM calls in the window.
type StatsSnapshot struct {
	Count            int     `json:"count"`
	Failures         int     `json:"failures"`
	MinMs            int64   `json:"min_ms"`
	MaxMs            int64   `json:"max_ms"`
	AvgMs            float64 `json:"avg_ms"`
	P50Ms            float64 `json:"p50_ms"`
	P95Ms            float64 `json:"p95_ms"`
	P99Ms            float64 `json:"p99_ms"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
}

// Stats tracks recent LLM call latencies and token usage within a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

// Record adds a successful call.
func (s *Stats) Record(durationMs int64, u Usage) {
	s.add(sample{durationMs: durationMs, usage: u})
}

// RecordFailure adds a failed call. It counts toward latency but not usage.
func (s *Stats) RecordFailure(durationMs int64) {
	s.add(sample{durationMs: durationMs, failed: true})
}

func (s *Stats) add(sm sample) {
	if sm.durationMs < 0 {
		sm.durationMs = 0
	}
	now := time.Now()
	sm.timestamp = now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sm)
}

func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	var snap StatsSnapshot
	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		if sm.failed {
			snap.Failures++
		}
		snap.PromptTokens += sm.usage.PromptTokens
		snap.CompletionTokens += sm.usage.CompletionTokens
		snap.TotalTokens += sm.usage.TotalTokens
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	writeIdx := 0
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			s.samples[writeIdx] = sm
			writeIdx++
		}
	}
	s.samples = s.samples[:writeIdx]
}

func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[upper])
	return lo + ((hi - lo) * weight)
}

// Instrumented records every call made through the wrapped Completer.
type Instrumented struct {
	next  Completer
	stats *Stats
}

func WithStats(next Completer, stats *Stats) *Instrumented {
	return &Instrumented{next: next, stats: stats}
}

func (c *Instrumented) Model() string { return c.next.Model() }

func (c *Instrumented) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		c.stats.RecordFailure(elapsed)
		return nil, err
	}
	c.stats.Record(elapsed, resp.Usage)
	return resp, nil
}
