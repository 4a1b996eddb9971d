package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/paperdigest/internal/document"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx manuscripts. Each paragraph is a block; explicit
// page breaks are not tracked, so the document is a single page.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "paperdigest-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	d, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	doc := &document.Document{
		Title:    titleFromFilename(filename, ".docx"),
		Filename: filename,
	}

	var blocks []string
	for _, item := range d.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		if isDocxTitle(para) && len(blocks) == 0 {
			doc.Title = text
		}
		blocks = append(blocks, text)
	}

	if len(blocks) > 0 {
		doc.Pages = []document.Page{{Number: 1, Blocks: blocks}}
	}
	return doc, nil
}

func isDocxTitle(para *docx.Paragraph) bool {
	if para.Properties == nil || para.Properties.Style == nil {
		return false
	}
	style := para.Properties.Style.Val
	return strings.EqualFold(style, "Title") || strings.EqualFold(style, "Heading1") || strings.EqualFold(style, "heading 1")
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
