// Package report writes digests to a plain-text report file.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/paperdigest/internal/section"
)

// Block is one headed part of a document digest.
type Block struct {
	Heading string
	Text    string
}

// Entry is the report block for one document.
type Entry struct {
	Title    string
	Source   string
	Sections []section.Entry
	Missing  []string
	Blocks   []Block
}

// Writer appends entries to a single report file.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string { return w.path }

// Write renders e into the report. The first document of a batch replaces
// any previous content and later documents are appended.
func (w *Writer) Write(e Entry, first bool) error {
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if first {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(w.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}

	bw := bufio.NewWriter(f)
	if !first {
		if info, err := f.Stat(); err == nil && info.Size() > 0 {
			bw.WriteString("\n")
		}
	}
	if err := Render(bw, e); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}

// Render writes the text form of e.
func Render(w io.Writer, e Entry) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "==== %s ====\n", e.Title)
	fmt.Fprintf(&sb, "source: %s\n", e.Source)

	located := make([]string, len(e.Sections))
	for i, s := range e.Sections {
		located[i] = fmt.Sprintf("%s(p%d)", s.Name, s.Page)
	}
	sb.WriteString("sections: ")
	if len(located) == 0 {
		sb.WriteString("none")
	} else {
		sb.WriteString(strings.Join(located, " "))
	}
	sb.WriteString("\nmissing: ")
	if len(e.Missing) == 0 {
		sb.WriteString("none")
	} else {
		sb.WriteString(strings.Join(e.Missing, ", "))
	}
	sb.WriteString("\n")

	for _, b := range e.Blocks {
		fmt.Fprintf(&sb, "\n## %s\n%s\n", b.Heading, strings.TrimSpace(b.Text))
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
