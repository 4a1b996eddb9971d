package parser

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/dgallion1/paperdigest/internal/document"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "paperdigest-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	pages, err := extractPDFPages(tmpPath)
	if (err != nil || blank(pages)) && p.FallbackPdftotext {
		if fallback, ferr := extractPdftotext(tmpPath); ferr == nil {
			pages, err = fallback, nil
		} else if err == nil {
			err = ferr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	return &document.Document{
		Title:    titleFromFilename(filename, ".pdf", ".PDF"),
		Filename: filename,
		Pages:    pages,
	}, nil
}

func extractPDFPages(path string) ([]document.Page, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]document.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, document.Page{Number: i})
			continue
		}
		blocks, err := pageRows(page)
		if err != nil || len(blocks) == 0 {
			text, perr := page.GetPlainText(nil)
			if perr != nil {
				pages = append(pages, document.Page{Number: i})
				continue
			}
			pages = append(pages, document.NewPage(i, text))
			continue
		}
		pages = append(pages, document.Page{Number: i, Blocks: blocks})
	}
	return pages, nil
}

// pageRows rebuilds text lines from positioned glyph runs.
func pageRows(page pdflib.Page) ([]string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, err
	}
	var blocks []string
	for _, row := range rows {
		texts := row.Content
		sort.SliceStable(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

		var line strings.Builder
		lastEnd := math.Inf(-1)
		for _, t := range texts {
			if t.S == "" {
				continue
			}
			gap := t.X - lastEnd
			if line.Len() > 0 && gap > 0.15*t.FontSize && !strings.HasSuffix(line.String(), " ") && !strings.HasPrefix(t.S, " ") {
				line.WriteByte(' ')
			}
			line.WriteString(t.S)
			lastEnd = t.X + t.W
		}
		if s := strings.TrimRight(line.String(), " "); strings.TrimSpace(s) != "" {
			blocks = append(blocks, s)
		}
	}
	return blocks, nil
}

func extractPdftotext(path string) ([]document.Page, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	return splitPages(string(out)), nil
}

// splitPages splits form-feed separated text into pages.
func splitPages(text string) []document.Page {
	raw := strings.Split(text, "\f")
	// pdftotext terminates the last page with a form feed too.
	if len(raw) > 1 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	pages := make([]document.Page, len(raw))
	for i, r := range raw {
		pages[i] = document.NewPage(i+1, r)
	}
	return pages
}

func blank(pages []document.Page) bool {
	for _, p := range pages {
		if len(p.Blocks) > 0 {
			return false
		}
	}
	return true
}
