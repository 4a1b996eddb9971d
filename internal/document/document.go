package document

import "strings"

// Document is the root of a loaded document: its title and pages in reading order.
type Document struct {
	Title    string // Document title (from metadata or filename)
	Filename string
	Pages    []Page
}

// Page is the extracted text of one physical page.
type Page struct {
	Number int      // 1-based physical page number
	Blocks []string // Text blocks (rows/lines) in reading order
}

// Text returns the page text with one block per line.
func (p Page) Text() string {
	return strings.Join(p.Blocks, "\n")
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// FullText concatenates all pages, separated by form feeds.
func (d *Document) FullText() string {
	texts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		texts[i] = p.Text()
	}
	return strings.Join(texts, "\f")
}

// NewPage builds a page from raw text, one block per non-empty line.
func NewPage(number int, text string) Page {
	var blocks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		blocks = append(blocks, line)
	}
	return Page{Number: number, Blocks: blocks}
}
