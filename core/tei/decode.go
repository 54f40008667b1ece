package tei

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/FocuswithJustin/teijson/core/corpus"
	"github.com/FocuswithJustin/teijson/core/errors"
)

// Decode tokenizes r and forwards element and character events to h.
// Comments, processing instructions and directives are ignored. A malformed
// document yields a *errors.ParseError; events already delivered stay
// delivered.
func Decode(r io.Reader, h Handler) error {
	d := xml.NewDecoder(r)
	// Standard entities still resolve; anything declared in a DTD does not.
	d.Entity = map[string]string{}
	d.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			line, _ := d.InputPos()
			return &errors.ParseError{
				Format:  "XML",
				Message: err.Error(),
				Line:    line,
				Err:     err,
			}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			h.StartElement(t.Name.Local, convertAttrs(t.Attr))
		case xml.EndElement:
			h.EndElement(t.Name.Local)
		case xml.CharData:
			h.CharData(string(t))
		}
	}
}

func convertAttrs(in []xml.Attr) Attrs {
	if len(in) == 0 {
		return nil
	}
	out := make(Attrs, len(in))
	for i, a := range in {
		out[i] = Attr{Space: a.Name.Space, Local: a.Name.Local, Value: a.Value}
	}
	return out
}

// Convert runs a fresh Converter over the TEI document read from r.
func Convert(r io.Reader, opts ...Option) (*corpus.Corpus, error) {
	conv := NewConverter(opts...)
	if err := Decode(r, conv); err != nil {
		return nil, err
	}
	return conv.Result(), nil
}

// ConvertBytes converts an in-memory TEI document.
func ConvertBytes(data []byte, opts ...Option) (*corpus.Corpus, error) {
	return Convert(bytes.NewReader(data), opts...)
}

// ConvertString converts a TEI document held in a string.
func ConvertString(s string, opts ...Option) (*corpus.Corpus, error) {
	return Convert(strings.NewReader(s), opts...)
}
