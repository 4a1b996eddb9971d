package section

import (
	"strings"
	"testing"

	"github.com/dgallion1/paperdigest/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var basicVocab = []string{"Abstract", "Introduction", "Methods", "Conclusion"}

func pages(texts ...string) []document.Page {
	out := make([]document.Page, len(texts))
	for i, t := range texts {
		out[i] = document.NewPage(i+1, t)
	}
	return out
}

func threePagePaper() []document.Page {
	return pages(
		"A Paper Title\nAbstract\nWe study things.\nIntroduction\nThings matter a lot.",
		"Methods\nWe measured a long-\nrunning process.",
		"Conclusion\nIt worked.",
	)
}

func TestLocate_ThreePageExample(t *testing.T) {
	idx := Locate(threePagePaper(), basicVocab)

	assert.Equal(t, []Entry{
		{Name: "Abstract", Page: 1},
		{Name: "Introduction", Page: 1},
		{Name: "Methods", Page: 2},
		{Name: "Conclusion", Page: 3},
	}, idx.Entries())
}

func TestSlice_ThreePageExample(t *testing.T) {
	pp := threePagePaper()
	idx := Locate(pp, basicVocab)
	secs := Slice(idx, pp)

	require.Equal(t, 4, secs.Len())

	abstract, ok := secs.Lookup("Abstract")
	require.True(t, ok)
	assert.Equal(t, "Abstract We study things.", abstract.Text)
	assert.Equal(t, Span{Name: "Abstract", StartPage: 1, EndPage: 1}, abstract.Span)

	intro, ok := secs.Lookup("Introduction")
	require.True(t, ok)
	assert.Equal(t, "Introduction Things matter a lot.", intro.Text)
	assert.Equal(t, Span{Name: "Introduction", StartPage: 1, EndPage: 2}, intro.Span)

	methods, ok := secs.Lookup("Methods")
	require.True(t, ok)
	assert.Equal(t, "Methods We measured a longrunning process.", methods.Text)

	conclusion, ok := secs.Lookup("Conclusion")
	require.True(t, ok)
	assert.Equal(t, "Conclusion It worked.", conclusion.Text)
	assert.Equal(t, Span{Name: "Conclusion", StartPage: 3, EndPage: 3}, conclusion.Span)
}

func TestSlice_MissingConclusion(t *testing.T) {
	pp := pages(
		"Abstract\nShort.",
		"Methods\nStep one.",
		"Step two continues here.",
	)
	idx := Locate(pp, basicVocab)

	_, ok := idx.Page("Conclusion")
	assert.False(t, ok)
	assert.Equal(t, []string{"Abstract", "Methods"}, idx.Names())

	secs := Slice(idx, pp)
	_, ok = secs.Lookup("Conclusion")
	assert.False(t, ok, "absent heading must not produce a section")
	assert.Equal(t, []string{"Introduction", "Conclusion"}, secs.Missing(basicVocab))

	methods, ok := secs.Lookup("Methods")
	require.True(t, ok)
	assert.Equal(t, 3, methods.Span.EndPage)
	assert.Equal(t, "Methods Step one. Step two continues here.", methods.Text)
}

func TestLocate_UpperCaseHeadings(t *testing.T) {
	pp := pages("ABSTRACT\nText.\n  INTRODUCTION  \nMore.")
	idx := Locate(pp, basicVocab)
	assert.Equal(t, []string{"Abstract", "Introduction"}, idx.Names())

	secs := Slice(idx, pp)
	intro, ok := secs.Lookup("Introduction")
	require.True(t, ok)
	assert.Equal(t, "INTRODUCTION More.", intro.Text)
}

func TestLocate_InlineMentionsIgnored(t *testing.T) {
	pp := pages(
		"In the Introduction we mention Methods and a Conclusion.",
		"Introduction\nReal intro.",
	)
	idx := Locate(pp, basicVocab)
	assert.Equal(t, []Entry{{Name: "Introduction", Page: 2}}, idx.Entries())
}

func TestLocate_FirstOccurrenceWins(t *testing.T) {
	pp := pages("Methods\nfirst", "Methods\nsecond", "Methods\nthird")
	idx := Locate(pp, basicVocab)
	page, ok := idx.Page("Methods")
	require.True(t, ok)
	assert.Equal(t, 1, page)
	assert.Equal(t, 1, idx.Len())
}

func TestLocate_SamePageUsesReadingOrder(t *testing.T) {
	// Introduction precedes Abstract on the page even though the
	// vocabulary lists Abstract first.
	pp := pages("Introduction\nfoo\nAbstract\nbar")
	idx := Locate(pp, basicVocab)
	assert.Equal(t, []string{"Introduction", "Abstract"}, idx.Names())

	secs := Slice(idx, pp)
	intro, _ := secs.Lookup("Introduction")
	assert.Equal(t, "Introduction foo", intro.Text)
	abstract, _ := secs.Lookup("Abstract")
	assert.Equal(t, "Abstract bar", abstract.Text)
}

func TestSpans_PartitionDistinctPages(t *testing.T) {
	pp := pages(
		"Abstract\na",
		"Introduction\nb",
		"filler",
		"Methods\nc",
		"Conclusion\nd",
		"appendix",
	)
	idx := Locate(pp, basicVocab)
	spans := Spans(idx, len(pp))
	require.Len(t, spans, 4)

	assert.Equal(t, 1, spans[0].StartPage)
	assert.Equal(t, len(pp), spans[len(spans)-1].EndPage)
	for i := 1; i < len(spans); i++ {
		// Adjacent spans share exactly their boundary page.
		assert.Equal(t, spans[i-1].EndPage, spans[i].StartPage)
		assert.Less(t, spans[i-1].StartPage, spans[i].StartPage)
	}
}

func TestSlice_ReadingOrderPreserved(t *testing.T) {
	pp := pages(
		"Abstract\nalpha beta\nIntroduction\ngamma",
		"delta\nMethods\nepsilon",
		"zeta\nConclusion\neta theta",
	)
	secs := Slice(Locate(pp, basicVocab), pp)

	var full []string
	for _, p := range pp {
		full = append(full, p.Text())
	}
	whole := Normalize(strings.Join(full, "\n"))

	last := -1
	for _, sec := range secs.All() {
		pos := strings.Index(whole, sec.Text)
		require.GreaterOrEqual(t, pos, 0, "section %q not found in document text", sec.Name)
		assert.Greater(t, pos, last, "section %q out of order", sec.Name)
		last = pos
	}
}

func TestSlice_UnfoundHeadingDegradesToFullPage(t *testing.T) {
	pp := pages("Abstract\nIntro words", "nothing that looks like a heading", "Conclusion\nend")
	idx := NewIndex()
	idx.add("Abstract", 1)
	idx.add("Results", 2)
	idx.add("Conclusion", 3)

	secs := Slice(idx, pp)
	results, ok := secs.Lookup("Results")
	require.True(t, ok)
	assert.Equal(t, "nothing that looks like a heading", results.Text)
}

func TestSlice_EmptyIndex(t *testing.T) {
	pp := pages("no headings here")
	secs := Slice(Locate(pp, basicVocab), pp)
	assert.Equal(t, 0, secs.Len())
	_, ok := secs.Lookup("Abstract")
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a\nb", "a b"},
		{"hyphen-\nated word", "hyphenated word"},
		{"  lots   of\t\tspace \r\n here ", "lots of space here"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestNewSectionsKeepsFirstOccurrence(t *testing.T) {
	secs := NewSections(
		Section{Name: "Abstract", Text: "Abstract One."},
		Section{Name: "Methods", Text: ""},
		Section{Name: "Abstract", Text: "Abstract Two."},
	)
	assert.Equal(t, []string{"Abstract", "Methods"}, secs.Names())

	abs, ok := secs.Lookup("Abstract")
	require.True(t, ok)
	assert.Equal(t, "Abstract One.", abs.Text)

	meth, ok := secs.Lookup("Methods")
	assert.True(t, ok, "located but empty is still present")
	assert.Empty(t, meth.Text)
	assert.Equal(t, []string{"Conclusion"}, secs.Missing([]string{"Abstract", "Methods", "Conclusion"}))
}
