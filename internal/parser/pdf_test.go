package parser

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/dgallion1/paperdigest/internal/document"
)

// buildPDF writes a minimal PDF with one Helvetica text line per entry of
// each page. Widths are fixed so glyph positions advance like real text.
func buildPDF(pages [][]string) []byte {
	var objs []string
	// 1: catalog, 2: pages, 3: font, then content+page pairs.
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 5+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths ["+
			strings.TrimSpace(strings.Repeat("500 ", 95))+"] >>",
	)
	for i, lines := range pages {
		var content strings.Builder
		if len(lines) > 0 {
			content.WriteString("BT /F1 12 Tf 72 720 Td\n")
			for j, line := range lines {
				if j > 0 {
					content.WriteString("0 -16 Td\n")
				}
				esc := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(line)
				fmt.Fprintf(&content, "(%s) Tj\n", esc)
			}
			content.WriteString("ET")
		}
		objs = append(objs,
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 4+2*i),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestPDFParser_PagesAndRows(t *testing.T) {
	data := buildPDF([][]string{
		{"Abstract", "We study things.", "Introduction", "Things matter."},
		{"Methods", "We did (careful) things."},
		{"CONCLUSION", "It worked."},
	})
	p := &PDFParser{}
	doc, err := p.Parse(bytes.NewReader(data), "paper.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "paper" {
		t.Errorf("expected title %q, got %q", "paper", doc.Title)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	want := [][]string{
		{"Abstract", "We study things.", "Introduction", "Things matter."},
		{"Methods", "We did (careful) things."},
		{"CONCLUSION", "It worked."},
	}
	for i, page := range doc.Pages {
		if page.Number != i+1 {
			t.Errorf("page %d: expected number %d, got %d", i, i+1, page.Number)
		}
		if !reflect.DeepEqual(page.Blocks, want[i]) {
			t.Errorf("page %d: expected blocks %q, got %q", i+1, want[i], page.Blocks)
		}
	}
}

func TestPDFParser_EmptyPageKeepsNumbering(t *testing.T) {
	data := buildPDF([][]string{
		{"Abstract"},
		nil,
		{"Methods"},
	})
	doc, err := (&PDFParser{}).Parse(bytes.NewReader(data), "gap.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	if len(doc.Pages[1].Blocks) != 0 {
		t.Errorf("expected page 2 to be empty, got %q", doc.Pages[1].Blocks)
	}
	if doc.Pages[2].Number != 3 || len(doc.Pages[2].Blocks) == 0 || doc.Pages[2].Blocks[0] != "Methods" {
		t.Errorf("expected page 3 to start with Methods, got %+v", doc.Pages[2])
	}
}

func TestPDFParser_BlankWithoutFallbackIsNotAnError(t *testing.T) {
	data := buildPDF([][]string{nil, nil})
	doc, err := (&PDFParser{FallbackPdftotext: false}).Parse(bytes.NewReader(data), "scan.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.PageCount())
	}
	if !blank(doc.Pages) {
		t.Errorf("expected every page to be blank, got %+v", doc.Pages)
	}
}

func TestPDFParser_InvalidWithoutFallback(t *testing.T) {
	_, err := (&PDFParser{}).Parse(strings.NewReader("not a pdf"), "broken.pdf")
	if err == nil {
		t.Fatal("expected an error for a non-PDF body")
	}
}

func TestBlank(t *testing.T) {
	tests := []struct {
		name  string
		pages []document.Page
		want  bool
	}{
		{"no pages", nil, true},
		{"only empty pages", []document.Page{{Number: 1}, {Number: 2}}, true},
		{"one page with text", []document.Page{{Number: 1}, document.NewPage(2, "Abstract")}, false},
	}
	for _, tt := range tests {
		if got := blank(tt.pages); got != tt.want {
			t.Errorf("%s: blank() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSplitPages_DropsTrailingFormFeed(t *testing.T) {
	pages := splitPages("Abstract\nText\fMethods\n\f")
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[1].Number != 2 || pages[1].Blocks[0] != "Methods" {
		t.Errorf("unexpected second page: %+v", pages[1])
	}
}
