package tei

import (
	"github.com/FocuswithJustin/teijson/core/corpus"
)

// SpanKind names the kind of span a diagnostic refers to.
type SpanKind string

const (
	SpanRef        SpanKind = "ref"
	SpanList       SpanKind = "list"
	SpanFormula    SpanKind = "formula"
	SpanAnnotation SpanKind = "annotation"
)

// Diagnostic reports a span whose recorded text differs from the slice of
// the reconstructed text at its offsets.
type Diagnostic struct {
	Kind     SpanKind `json:"kind"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Expected string   `json:"expected"` // text recorded on the span
	Actual   string   `json:"actual"`   // text found at the span offsets
	Text     string   `json:"text"`     // full paragraph or title text
	InTitle  bool     `json:"in_title,omitempty"`
}

type checkedSpan struct {
	kind       SpanKind
	start, end int
	text       string
}

// check compares every span of p with the reconstructed text. It only
// reports; the paragraph is emitted unchanged.
func (c *Converter) check(p *corpus.Paragraph, title bool) {
	var spans []checkedSpan
	for _, s := range p.RefSpans {
		spans = append(spans, checkedSpan{SpanRef, s.Start, s.End, s.Text})
	}
	for _, s := range p.ListSpans {
		spans = append(spans, checkedSpan{SpanList, s.Start, s.End, s.Text})
	}
	for _, s := range p.FormulaSpans {
		spans = append(spans, checkedSpan{SpanFormula, s.Start, s.End, s.Text})
	}
	for _, s := range p.Annotations {
		spans = append(spans, checkedSpan{SpanAnnotation, s.Start, s.End, s.Text})
	}

	for _, s := range spans {
		actual := corpus.SpanText(p.Text, s.start, s.end)
		if actual == s.text {
			continue
		}
		d := Diagnostic{
			Kind:     s.kind,
			Start:    s.start,
			End:      s.end,
			Expected: s.text,
			Actual:   actual,
			Text:     p.Text,
			InTitle:  title,
		}
		c.log.Warn("span offsets do not match text",
			"kind", string(d.Kind),
			"start", d.Start,
			"end", d.End,
			"span_text", d.Expected,
			"offset_text", d.Actual,
			"in_title", d.InTitle,
			"text", d.Text)
		if c.onDiag != nil {
			c.onDiag(d)
		}
	}
}

// Verify re-checks every span of every paragraph in the corpus and returns the
// mismatches found.
func Verify(c *corpus.Corpus) []Diagnostic {
	var out []Diagnostic
	conv := NewConverter(WithLogger(discardLogger()), WithDiagnostics(func(d Diagnostic) {
		out = append(out, d)
	}))
	for _, doc := range c.Documents {
		for _, group := range [][]*corpus.Paragraph{doc.Abstract, doc.Body} {
			for _, p := range group {
				conv.check(p, false)
			}
		}
	}
	return out
}
