package parser

import (
	"io"

	"github.com/dgallion1/paperdigest/internal/document"
)

// TextParser handles plain text files. Form feeds separate pages,
// as produced by pdftotext and most text exports of papers.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	doc := &document.Document{
		Title:    titleFromFilename(filename, ".txt"),
		Filename: filename,
	}
	if len(data) == 0 {
		return doc, nil
	}
	doc.Pages = splitPages(string(data))
	return doc, nil
}
