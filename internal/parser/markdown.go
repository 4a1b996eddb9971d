package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/paperdigest/internal/document"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. The whole file is a
// single page; every heading becomes a standalone block.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	reader := text.NewReader(src)
	root := md.Parser().Parse(reader)

	doc := &document.Document{
		Title:    titleFromFilename(filename, ".md", ".markdown"),
		Filename: filename,
	}

	var blocks []string
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(string(node.Text(src)))
			if title == "" {
				continue
			}
			if node.Level == 1 && len(blocks) == 0 {
				doc.Title = title
			}
			blocks = append(blocks, title)
		default:
			for _, line := range strings.Split(extractText(n, src), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					blocks = append(blocks, line)
				}
			}
		}
	}

	if len(blocks) > 0 {
		doc.Pages = []document.Page{{Number: 1, Blocks: blocks}}
	}
	return doc, nil
}

// extractText gets the text content of a goldmark AST node. Leaf blocks
// (code) contribute their raw lines, everything else its inline text.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if !n.HasChildren() && n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		buf.WriteString(extractText(c, src))
		if c.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String())
}
