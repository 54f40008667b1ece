// Package tei converts TEI XML, as produced by GROBID or Pub2TEI, into the
// flattened document model of package corpus.
//
// The Converter is an event-driven state machine. It receives element open,
// element close and character events in document order and rebuilds each
// paragraph as plain text, recording the offsets of citations, list items,
// formulas and named-entity mentions while it goes. It never sees the whole
// document, so every offset is computed from what has been committed so far.
package tei

import (
	"log/slog"
	"strings"

	"github.com/FocuswithJustin/teijson/core/corpus"
)

// Handler consumes structural XML events.
type Handler interface {
	StartElement(name string, attrs Attrs)
	EndElement(name string)
	CharData(text string)
}

// Converter turns one TEI event stream into a corpus. A Converter is not safe
// for concurrent use and must not be reused for a second stream.
type Converter struct {
	log    *slog.Logger
	onDiag func(Diagnostic)

	corpus       *corpus.Corpus
	contributors []corpus.Contributor
	contributor  *corpus.Contributor

	doc      *corpus.Document
	inBody   bool
	abstract bool
	section  string

	stack   []*frame
	pending strings.Builder

	// orphan receives inline text that shows up outside any paragraph. It
	// is never emitted.
	orphan *textBuilder
}

// NewConverter returns a converter ready to receive events.
func NewConverter(opts ...Option) *Converter {
	cfg := newConfig(opts)
	return &Converter{
		log:    cfg.logger,
		onDiag: cfg.onDiagnostic,
	}
}

var _ Handler = (*Converter)(nil)

// CharData buffers text until the next element event decides where it goes.
func (c *Converter) CharData(text string) {
	c.pending.WriteString(text)
}

// StartElement handles an element open event.
func (c *Converter) StartElement(name string, attrs Attrs) {
	c.flush()

	f := &frame{name: name, role: Classify(name)}
	switch f.role {
	case RoleCorpus:
		if c.corpus == nil {
			c.corpus = newCorpus()
		}

	case RoleDocument:
		c.startDocument(attrs)

	case RoleHeader, RoleText:
		if lang, ok := attrs.Lookup("xml:lang"); ok && c.doc != nil {
			c.doc.Lang = lang
		}

	case RoleFileDesc:
		if id, ok := attrs.Lookup("xml:id"); ok && c.doc != nil {
			c.doc.ID = id
		}

	case RoleIdno:
		f.idnoType, _ = attrs.Lookup("type")

	case RoleTitle:
		f.inline = c.activeContext() != nil

	case RoleRespStmt:
		c.contributor = &corpus.Contributor{}
		if id, ok := attrs.Lookup("xml:id"); ok {
			c.contributor.ID = id
		}

	case RoleAbstract:
		c.abstract = true
		c.section = ""

	case RoleBody:
		c.inBody = true

	case RoleHead:
		f.ctx = newTitleBuilder()

	case RoleParagraph:
		f.ctx = newParagraphBuilder()
		c.orphan = nil

	case RoleNote:
		// Only foot notes carry content. Other notes sit in the header or
		// the bibliography and are skipped.
		if place, ok := attrs.Lookup("place"); ok && place == "foot" {
			f.ctx = newParagraphBuilder()
			c.orphan = nil
		} else {
			f.role = RoleSkip
		}

	case RoleList:
		c.commit(c.ensureContext(), "\n")

	case RoleItem:
		f.itemKind = name
		f.inList = c.inList()
		f.span = newSpan(c.ensureContext())

	case RoleFormula:
		ctx := c.activeContext()
		if ctx == nil || ctx == c.orphan {
			// A formula outside any paragraph becomes a paragraph of its own.
			f.ctx = newParagraphBuilder()
			ctx = f.ctx
			c.orphan = nil
		}
		f.formulaID, _ = attrs.Lookup("xml:id")
		f.span = newSpan(ctx)

	case RoleRef:
		if typ, ok := attrs.Lookup("type"); ok {
			f.refType = typ
			if target, ok := attrs.Lookup("target"); ok {
				f.refTarget = strings.TrimPrefix(target, "#")
			}
			f.span = newSpan(c.ensureContext())
		}

	case RoleEntity:
		f.entity = entityFromAttrs(attrs)
		f.span = newSpan(c.ensureContext())
	}

	c.stack = append(c.stack, f)
}

// EndElement handles an element close event. A close without a matching open
// element is ignored; open elements above the matching one are closed first.
func (c *Converter) EndElement(name string) {
	i := len(c.stack) - 1
	for i >= 0 && c.stack[i].name != name {
		i--
	}
	if i < 0 {
		c.flush()
		return
	}
	for len(c.stack)-1 > i {
		c.closeFrame(c.pop(), "")
	}
	text := c.pending.String()
	c.pending.Reset()
	c.closeFrame(c.pop(), text)
}

func (c *Converter) pop() *frame {
	f := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return f
}

// closeFrame finishes an element whose frame has already been popped. text
// is whatever arrived since the previous event.
func (c *Converter) closeFrame(f *frame, text string) {
	switch f.role {
	case RoleSkip:
		// Text pending at the close of an unknown element is dropped.

	case RoleCorpus:
		if len(c.contributors) > 0 && c.corpus != nil {
			c.corpus.Contributors = c.contributors
		}

	case RoleDocument:
		c.endDocument()

	case RoleTitle:
		if f.inline {
			c.commitActive(text)
			return
		}
		c.setTitle(text)

	case RoleIdno:
		if f.idnoType == "" {
			c.commitActive(text)
			return
		}
		if c.doc != nil && strings.TrimSpace(text) != "" {
			if c.doc.Identifiers == nil {
				c.doc.Identifiers = make(map[string]string)
			}
			if _, seen := c.doc.Identifiers[f.idnoType]; !seen {
				c.doc.Identifiers[f.idnoType] = text
			}
		}

	case RoleResp:
		if c.contributor == nil {
			c.commitActive(text)
			return
		}
		c.contributor.Role = text

	case RoleName:
		if c.contributor == nil {
			c.commitActive(text)
			return
		}
		c.contributor.Name = text

	case RoleRespStmt:
		if c.contributor != nil {
			c.contributors = append(c.contributors, *c.contributor)
		}
		c.contributor = nil

	case RoleAbstract:
		c.commitOpen(text)
		c.abstract = false

	case RoleDiv:
		c.commitOpen(text)
		c.section = ""

	case RoleHead:
		c.commit(f.ctx, text)
		c.finishTitle(f.ctx)

	case RoleParagraph, RoleNote:
		c.commit(f.ctx, text)
		c.finishParagraph(f.ctx)

	case RoleItem:
		c.commitSpan(f, text)
		if f.inList {
			f.span.owner.lists = append(f.span.owner.lists, corpus.ListSpan{
				Type:  f.itemKind,
				Start: f.span.start,
				End:   f.span.end(),
				Text:  f.span.text.String(),
			})
		}
		sep := "\n"
		if f.itemKind == "label" {
			sep = " "
		}
		c.commit(f.span.owner, sep)

	case RoleFormula:
		c.commitSpan(f, text)
		f.span.owner.formulas = append(f.span.owner.formulas, corpus.FormulaSpan{
			ID:    f.formulaID,
			Start: f.span.start,
			End:   f.span.end(),
			Text:  f.span.text.String(),
		})
		if f.ctx != nil {
			c.finishParagraph(f.ctx)
		}

	case RoleRef:
		if f.span == nil {
			c.commitActive(text)
			return
		}
		c.commitSpan(f, text)
		f.span.owner.refs = append(f.span.owner.refs, corpus.RefSpan{
			Type:   f.refType,
			Target: f.refTarget,
			Start:  f.span.start,
			End:    f.span.end(),
			Text:   f.span.text.String(),
		})

	case RoleEntity:
		c.commitSpan(f, text)
		a := f.entity
		a.Start = f.span.start
		a.End = f.span.end()
		a.Text = f.span.text.String()
		f.span.owner.annotations = append(f.span.owner.annotations, a)

	case RoleHeader, RoleText, RoleFileDesc, RoleBody:
		c.commitOpen(text)

	default:
		// Styled inline text, math atoms and lists contribute their text
		// to the surrounding context.
		c.commitActive(text)
	}
}

// flush commits pending text to the active context. Text is dropped when no
// paragraph or title is open, or when it sits directly inside an unknown
// element.
func (c *Converter) flush() {
	if c.pending.Len() == 0 {
		return
	}
	text := c.pending.String()
	c.pending.Reset()
	if n := len(c.stack); n > 0 && c.stack[n-1].role == RoleSkip {
		return
	}
	c.commitOpen(text)
}

// commitOpen commits text only if a paragraph or title is open.
func (c *Converter) commitOpen(text string) {
	if ctx := c.activeContext(); ctx != nil {
		c.commit(ctx, text)
	}
}

// commitActive commits text to the active context, creating an orphan
// context when inline content closes outside any paragraph.
func (c *Converter) commitActive(text string) {
	if text == "" {
		return
	}
	c.commit(c.ensureContext(), text)
}

// commit appends text to ctx, advancing its offset, and extends every open
// span anchored in ctx.
func (c *Converter) commit(ctx *textBuilder, text string) {
	if ctx == nil || text == "" {
		return
	}
	ctx.write(text)
	for _, f := range c.stack {
		if f.span != nil && f.span.owner == ctx {
			f.span.text.WriteString(text)
		}
	}
}

// commitSpan commits text for a popped inline frame, which commit no longer
// reaches through the stack.
func (c *Converter) commitSpan(f *frame, text string) {
	if text == "" {
		return
	}
	c.commit(f.span.owner, text)
	f.span.text.WriteString(text)
}

// activeContext returns the innermost open paragraph or title, falling back
// to the orphan context.
func (c *Converter) activeContext() *textBuilder {
	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i].ctx != nil {
			return c.stack[i].ctx
		}
	}
	return c.orphan
}

func (c *Converter) ensureContext() *textBuilder {
	if ctx := c.activeContext(); ctx != nil {
		return ctx
	}
	c.orphan = newParagraphBuilder()
	return c.orphan
}

// inList reports whether a list is open inside the innermost text context.
func (c *Converter) inList() bool {
	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i].role == RoleList {
			return true
		}
		if c.stack[i].ctx != nil {
			return false
		}
	}
	return false
}

func entityFromAttrs(attrs Attrs) corpus.Annotation {
	var a corpus.Annotation
	a.Type, _ = attrs.Lookup("type")
	a.Subtype, _ = attrs.Lookup("subtype")
	a.ID, _ = attrs.Lookup("xml:id")
	a.Corresp, _ = attrs.Lookup("corresp")
	a.Resp, _ = attrs.Lookup("resp")
	a.Cert, _ = attrs.Lookup("cert")
	return a
}
