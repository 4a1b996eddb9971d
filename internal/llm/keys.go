package llm

import (
	"strings"
	"sync/atomic"
)

// KeyRing hands out API keys round-robin. Safe for concurrent use.
type KeyRing struct {
	keys []string
	next atomic.Uint64
}

// NewKeyRing drops blank entries. It returns nil when no key remains.
func NewKeyRing(keys []string) *KeyRing {
	var clean []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return &KeyRing{keys: clean}
}

func (r *KeyRing) Next() string {
	n := r.next.Add(1) - 1
	return r.keys[n%uint64(len(r.keys))]
}

func (r *KeyRing) Len() int { return len(r.keys) }
