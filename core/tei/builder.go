package tei

import (
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/teijson/core/corpus"
)

// textBuilder accumulates the reconstructed text of one paragraph or section
// title together with the spans whose offsets point into it.
type textBuilder struct {
	title  bool
	text   strings.Builder
	offset int // committed length in runes

	refs        []corpus.RefSpan
	lists       []corpus.ListSpan
	formulas    []corpus.FormulaSpan
	annotations []corpus.Annotation
}

func newParagraphBuilder() *textBuilder { return &textBuilder{} }

func newTitleBuilder() *textBuilder { return &textBuilder{title: true} }

func (b *textBuilder) write(s string) {
	b.text.WriteString(s)
	b.offset += utf8.RuneCountInString(s)
}

func (b *textBuilder) String() string { return b.text.String() }

// spanBuilder records an inline span while its element is open. The literal
// text grows with everything committed to owner until the element closes.
type spanBuilder struct {
	owner *textBuilder
	start int
	text  strings.Builder
}

func newSpan(owner *textBuilder) *spanBuilder {
	return &spanBuilder{owner: owner, start: owner.offset}
}

// end is the exclusive end offset of the span in its owner.
func (s *spanBuilder) end() int {
	return s.start + utf8.RuneCountInString(s.text.String())
}

// frame is one open element on the converter stack.
type frame struct {
	name string
	role Role

	// ctx is set on elements that own a text context: head, paragraph-like
	// elements, foot notes and formulas that appear outside a paragraph.
	ctx *textBuilder

	// span is set on inline elements that produce a span.
	span *spanBuilder

	refType   string
	refTarget string
	itemKind  string
	formulaID string
	entity    corpus.Annotation
	idnoType  string
	inline    bool // title element found inside a text context
	inList    bool // item or label inside a list element
}
