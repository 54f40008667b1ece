// Package corpus defines the flattened document model produced from TEI XML.
//
// The model follows the CORD-19 "lossy" JSON layout: a corpus holds documents,
// a document holds abstract and body paragraphs, and every paragraph carries its
// plain text together with span annotations whose offsets index into that text.
//
// Offsets are counted in Unicode code points, not bytes.
package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// DefaultLang is the language assigned to documents that do not declare one.
const DefaultLang = "en"

// LevelParagraph is the only granularity produced by the converter.
const LevelParagraph = "paragraph"

// Corpus is an ordered collection of converted documents plus shared metadata.
type Corpus struct {
	Title        string        `json:"title,omitempty"`
	Contributors []Contributor `json:"respStmt,omitempty"`
	Documents    []*Document   `json:"documents"`
}

// Contributor is a (name, role) pair taken from a respStmt element.
type Contributor struct {
	ID   string `json:"id,omitempty"`
	Role string `json:"resp,omitempty"`
	Name string `json:"name,omitempty"`
}

// Document is one converted source document.
type Document struct {
	ID          string            `json:"id,omitempty"`
	Lang        string            `json:"lang"`
	Type        string            `json:"type,omitempty"`
	Subtype     string            `json:"subtype,omitempty"`
	Level       string            `json:"level"`
	Title       string            `json:"title,omitempty"`
	Identifiers map[string]string `json:"idno,omitempty"`
	Abstract    []*Paragraph      `json:"abstract,omitempty"`
	Body        []*Paragraph      `json:"body_text,omitempty"`
}

// NewDocument returns a document with the default language and level applied.
func NewDocument() *Document {
	return &Document{
		Lang:  DefaultLang,
		Level: LevelParagraph,
	}
}

// Paragraph is a flattened unit of text with its inline annotations.
// Section titles are emitted with the same shape.
type Paragraph struct {
	ID           string        `json:"id,omitempty"`
	Section      string        `json:"section,omitempty"`
	Text         string        `json:"text"`
	RefSpans     []RefSpan     `json:"ref_spans,omitempty"`
	ListSpans    []ListSpan    `json:"list_spans,omitempty"`
	FormulaSpans []FormulaSpan `json:"formula_spans,omitempty"`
	Annotations  []Annotation  `json:"annotations,omitempty"`
}

// RefSpan marks a citation or cross-reference.
type RefSpan struct {
	Type   string `json:"type"`
	Target string `json:"ref_id,omitempty"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"text"`
}

// ListSpan marks a list item or list label.
type ListSpan struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// FormulaSpan marks an inline or display formula.
type FormulaSpan struct {
	ID    string `json:"id,omitempty"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Annotation marks a named-entity mention (TEI rs element).
type Annotation struct {
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`
	ID      string `json:"id,omitempty"`
	Corresp string `json:"corresp,omitempty"`
	Resp    string `json:"resp,omitempty"`
	Cert    string `json:"cert,omitempty"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Text    string `json:"text"`
}

// AssignParagraphIDs numbers abstract paragraphs a0, a1, ... and body
// paragraphs b0, b1, ... in traversal order.
func AssignParagraphIDs(doc *Document) {
	if doc == nil {
		return
	}
	for i, p := range doc.Abstract {
		p.ID = fmt.Sprintf("a%d", i)
	}
	for i, p := range doc.Body {
		p.ID = fmt.Sprintf("b%d", i)
	}
}

// SpanText returns the code-point slice text[start:end]. Out of range bounds
// are clamped so a bad span yields a short string instead of a panic.
func SpanText(text string, start, end int) string {
	n := utf8.RuneCountInString(text)
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= end {
		return ""
	}
	runes := []rune(text)
	return string(runes[start:end])
}

// Write encodes the corpus as indented JSON. An empty indent selects four spaces.
func Write(w io.Writer, c *Corpus, indent string) error {
	if indent == "" {
		indent = "    "
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", indent)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding corpus: %w", err)
	}
	return nil
}

// Marshal returns the indented JSON encoding of the corpus.
func Marshal(c *Corpus) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, c, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
