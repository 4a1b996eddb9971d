package section

import (
	"strings"

	"github.com/dgallion1/paperdigest/internal/document"
)

// Span is the page range attributed to one section. EndPage is the start
// page of the following section, or the last page of the document.
type Span struct {
	Name      string `json:"name"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
}

// Section is the normalized text of one located section.
type Section struct {
	Name string `json:"name"`
	Span Span   `json:"span"`
	Text string `json:"text"`
}

// Sections holds sliced sections in reading order.
type Sections struct {
	list []Section
	pos  map[string]int
}

// Spans derives the page range of every index entry.
func Spans(idx *Index, pageCount int) []Span {
	entries := idx.Entries()
	spans := make([]Span, len(entries))
	for i, e := range entries {
		end := pageCount
		if i+1 < len(entries) {
			end = entries[i+1].Page
		}
		if end < e.Page {
			end = e.Page
		}
		spans[i] = Span{Name: e.Name, StartPage: e.Page, EndPage: end}
	}
	return spans
}

// Slice produces the text of every located section. Within the start and
// end pages the heading offsets bound the slice. A heading that cannot be
// found again on its page leaves that page unbounded on that side.
func Slice(idx *Index, pages []document.Page) Sections {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text()
	}
	pageText := func(n int) string {
		if n < 1 || n > len(texts) {
			return ""
		}
		return texts[n-1]
	}

	spans := Spans(idx, len(pages))
	out := Sections{
		list: make([]Section, 0, len(spans)),
		pos:  make(map[string]int, len(spans)),
	}
	for i, sp := range spans {
		next := ""
		if i+1 < len(spans) {
			next = spans[i+1].Name
		}

		var raw string
		if sp.StartPage == sp.EndPage {
			raw = slicePage(pageText(sp.StartPage), sp.Name, next)
		} else {
			var b strings.Builder
			first := pageText(sp.StartPage)
			if off := headingOffset(first, sp.Name); off > 0 {
				first = first[off:]
			}
			b.WriteString(first)
			for p := sp.StartPage + 1; p < sp.EndPage; p++ {
				b.WriteString("\n")
				b.WriteString(pageText(p))
			}
			last := pageText(sp.EndPage)
			if next != "" {
				if off := headingOffset(last, next); off >= 0 {
					last = last[:off]
				}
			}
			b.WriteString("\n")
			b.WriteString(last)
			raw = b.String()
		}

		out.pos[sp.Name] = len(out.list)
		out.list = append(out.list, Section{Name: sp.Name, Span: sp, Text: Normalize(raw)})
	}
	return out
}

// slicePage cuts one page between the heading of name and the heading of
// next. next is searched only after the start of name.
func slicePage(text, name, next string) string {
	start := headingOffset(text, name)
	if start < 0 {
		start = 0
	}
	end := len(text)
	if next != "" {
		if off := headingOffset(text[start:], next); off >= 0 {
			end = start + off
		}
	}
	return text[start:end]
}

// Normalize joins hyphenated line wraps and collapses line breaks and other
// whitespace runs into single spaces.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "-\n", "")
	return strings.Join(strings.Fields(s), " ")
}

// NewSections builds a Sections from already sliced sections in reading
// order. A repeated name keeps its first occurrence.
func NewSections(list ...Section) Sections {
	out := Sections{
		list: make([]Section, 0, len(list)),
		pos:  make(map[string]int, len(list)),
	}
	for _, sec := range list {
		if _, dup := out.pos[sec.Name]; dup {
			continue
		}
		out.pos[sec.Name] = len(out.list)
		out.list = append(out.list, sec)
	}
	return out
}

func (s Sections) Len() int {
	return len(s.list)
}

// All returns the sections in reading order.
func (s Sections) All() []Section {
	out := make([]Section, len(s.list))
	copy(out, s.list)
	return out
}

// Lookup returns the named section and whether it was located at all.
// A located section may still have empty text.
func (s Sections) Lookup(name string) (Section, bool) {
	i, ok := s.pos[name]
	if !ok {
		return Section{}, false
	}
	return s.list[i], true
}

// Names returns the section names in reading order.
func (s Sections) Names() []string {
	names := make([]string, len(s.list))
	for i, sec := range s.list {
		names[i] = sec.Name
	}
	return names
}

// Missing lists the vocabulary names that have no section.
func (s Sections) Missing(vocab []string) []string {
	var missing []string
	for _, name := range vocab {
		if _, ok := s.pos[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Split locates and slices in one step.
func Split(doc *document.Document, vocab []string) (*Index, Sections) {
	idx := Locate(doc.Pages, vocab)
	return idx, Slice(idx, doc.Pages)
}
