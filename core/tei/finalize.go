package tei

import (
	"strings"

	"github.com/FocuswithJustin/teijson/core/corpus"
)

func newCorpus() *corpus.Corpus {
	return &corpus.Corpus{Documents: []*corpus.Document{}}
}

// startDocument resets all per-document state and applies the attributes of
// the TEI root element.
func (c *Converter) startDocument(attrs Attrs) {
	if c.corpus == nil {
		c.corpus = newCorpus()
	}
	if c.doc != nil {
		c.log.Debug("document opened before the previous one closed", "previous_id", c.doc.ID)
	}

	doc := corpus.NewDocument()
	if v, ok := attrs.Lookup("type"); ok {
		doc.Type = v
	}
	if v, ok := attrs.Lookup("subtype"); ok {
		doc.Subtype = v
	}
	if v, ok := attrs.Lookup("xml:lang"); ok {
		doc.Lang = v
	}

	c.doc = doc
	c.inBody = false
	c.abstract = false
	c.section = ""
	c.orphan = nil
}

// endDocument numbers the finished document's paragraphs and appends it to
// the corpus.
func (c *Converter) endDocument() {
	if c.doc == nil {
		return
	}
	corpus.AssignParagraphIDs(c.doc)
	c.corpus.Documents = append(c.corpus.Documents, c.doc)
	c.doc = nil
	c.orphan = nil
}

// setTitle records a header title: on the corpus when no document is open,
// otherwise on the document. The first non-empty title wins.
func (c *Converter) setTitle(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if c.doc == nil {
		if c.corpus == nil {
			c.corpus = newCorpus()
		}
		if c.corpus.Title == "" {
			c.corpus.Title = text
		}
		return
	}
	if c.doc.Title == "" {
		c.doc.Title = text
	}
}

// finishTitle emits a closed section heading and makes it the section title
// of the paragraphs that follow.
func (c *Converter) finishTitle(b *textBuilder) {
	text := b.String()
	c.section = text

	p := &corpus.Paragraph{
		Text:        text,
		RefSpans:    b.refs,
		Annotations: b.annotations,
	}
	c.check(p, true)
	if notEmpty(text) {
		c.route(p)
	}
}

// finishParagraph emits a closed paragraph, foot note or standalone formula.
func (c *Converter) finishParagraph(b *textBuilder) {
	p := &corpus.Paragraph{
		Section:      c.section,
		Text:         b.String(),
		RefSpans:     b.refs,
		ListSpans:    b.lists,
		FormulaSpans: b.formulas,
		Annotations:  b.annotations,
	}
	c.check(p, false)
	if notEmpty(p.Text) {
		c.route(p)
	}
}

// route appends p to the abstract or the body of the current document.
// Paragraphs found before the body starts, such as those in the header's
// source description, are not content and are dropped.
func (c *Converter) route(p *corpus.Paragraph) {
	switch {
	case c.doc == nil:
		return
	case c.abstract:
		c.doc.Abstract = append(c.doc.Abstract, p)
	case c.inBody:
		c.doc.Body = append(c.doc.Body, p)
	}
}

// Result returns the corpus built so far. Contributors are attached even when
// the stream had no teiCorpus root. A document still open is not included.
func (c *Converter) Result() *corpus.Corpus {
	if c.corpus == nil {
		c.corpus = newCorpus()
	}
	if len(c.contributors) > 0 {
		c.corpus.Contributors = c.contributors
	}
	return c.corpus
}

func notEmpty(s string) bool {
	return strings.Trim(s, " \n\r\t") != ""
}
