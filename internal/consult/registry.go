package consult

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrExpertNotFound is returned when a named expert is not registered.
var ErrExpertNotFound = errors.New("expert not found")

// Expert is a persona the model answers as.
type Expert struct {
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// Registry holds experts in memory, keyed by case-insensitive title.
type Registry struct {
	mu      sync.RWMutex
	experts map[string]Expert
}

func NewRegistry(seed ...Expert) *Registry {
	r := &Registry{experts: make(map[string]Expert)}
	for _, e := range seed {
		r.Save(e)
	}
	return r
}

// Save adds or replaces an expert. Blank titles are ignored.
func (r *Registry) Save(e Expert) bool {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return false
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experts[key(e.Title)] = e
	return true
}

func (r *Registry) Get(title string) (Expert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.experts[key(title)]
	return e, ok
}

// List returns all experts sorted by title.
func (r *Registry) List() []Expert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Expert, 0, len(r.experts))
	for _, e := range r.experts {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i].Title) < key(out[j].Title) })
	return out
}

func key(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
