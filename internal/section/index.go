// Package section carves page text into named sections of a scientific
// paper by locating well-known heading lines.
package section

import (
	"sort"
	"strings"

	"github.com/dgallion1/paperdigest/internal/document"
)

// DefaultVocabulary is the recognized heading list, in priority order.
var DefaultVocabulary = []string{
	"Abstract",
	"Introduction",
	"Background",
	"Related Work",
	"Methods",
	"Methodology",
	"Materials and Methods",
	"Experiments",
	"Results",
	"Discussion",
	"Conclusion",
	"Conclusions",
	"References",
}

// Entry is one located heading and the 1-based page it first appears on.
type Entry struct {
	Name string `json:"name"`
	Page int    `json:"page"`
}

// Index maps section names to their first page. Iteration follows
// document reading order. A name is recorded at most once.
type Index struct {
	entries []Entry
	pos     map[string]int
}

func NewIndex() *Index {
	return &Index{pos: make(map[string]int)}
}

// add records name on page unless it is already present.
func (x *Index) add(name string, page int) bool {
	if _, ok := x.pos[name]; ok {
		return false
	}
	x.pos[name] = len(x.entries)
	x.entries = append(x.entries, Entry{Name: name, Page: page})
	return true
}

func (x *Index) Len() int {
	return len(x.entries)
}

// Page returns the first page of name, and false if it was never located.
func (x *Index) Page(name string) (int, bool) {
	i, ok := x.pos[name]
	if !ok {
		return 0, false
	}
	return x.entries[i].Page, true
}

// Names returns the located names in reading order.
func (x *Index) Names() []string {
	names := make([]string, len(x.entries))
	for i, e := range x.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a copy of the index entries in reading order.
func (x *Index) Entries() []Entry {
	out := make([]Entry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Locate scans pages in order and records the page on which each vocabulary
// name first appears as a standalone line, in exact or upper case. Several
// headings on one page are recorded in the order they appear on that page.
// Names that never appear are simply absent from the result.
func Locate(pages []document.Page, vocab []string) *Index {
	idx := NewIndex()

	type hit struct {
		name   string
		offset int
	}
	for i, page := range pages {
		text := page.Text()
		var hits []hit
		seen := make(map[string]bool)
		for _, name := range vocab {
			if _, ok := idx.pos[name]; ok || name == "" || seen[name] {
				continue
			}
			if off := lineOffset(text, name); off >= 0 {
				hits = append(hits, hit{name: name, offset: off})
				seen[name] = true
			}
		}
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].offset < hits[b].offset })
		for _, h := range hits {
			idx.add(h.name, pageNumber(i, page))
		}
	}
	return idx
}

func pageNumber(i int, page document.Page) int {
	if page.Number > 0 {
		return page.Number
	}
	return i + 1
}

// lineOffset returns the byte offset of the first line of text that, once
// trimmed, equals name or its upper-cased form. It returns -1 if none does.
func lineOffset(text, name string) int {
	upper := strings.ToUpper(name)
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == name || trimmed == upper {
			return offset + strings.Index(line, trimmed)
		}
		offset += len(line)
	}
	return -1
}

// headingOffset locates name on a page for slicing: a standalone heading
// line first, then any exact-case substring, then any upper-case substring.
func headingOffset(text, name string) int {
	if off := lineOffset(text, name); off >= 0 {
		return off
	}
	if off := strings.Index(text, name); off >= 0 {
		return off
	}
	return strings.Index(text, strings.ToUpper(name))
}
