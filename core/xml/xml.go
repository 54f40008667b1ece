// Package xml provides DOM access to TEI documents: well-formedness checks,
// XPath selection and replay of a parsed tree into a tei.Handler.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder
//     which doesn't fetch external entities by default, and we explicitly
//     disable entity expansion in validation functions.
//   - The xmlquery library is used for parsing, which uses Go's encoding/xml
//     internally and inherits its security properties.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/teijson/core/corpus"
	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/core/tei"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element.
type Node struct {
	node *xmlquery.Node
}

// ValidationResult contains the result of a well-formedness check.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a single well-formedness error.
type ValidationError struct {
	Line    int
	Column  int
	Message string
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader parses XML from r and returns a Document.
func ParseReader(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &errors.ParseError{Format: "XML", Message: err.Error(), Err: err}
	}
	return &Document{root: root}, nil
}

// Validate checks that data is well-formed XML. No schema is applied.
//
// Security: entity expansion is disabled. Go's xml.Decoder does not fetch
// external entities, and an empty entity map rejects anything a DTD declares.
func Validate(data []byte) ValidationResult {
	result := ValidationResult{Valid: true}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = map[string]string{}

	for {
		_, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, col := decoder.InputPos()
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Line:    line,
				Column:  col,
				Message: err.Error(),
			})
			break
		}
	}

	return result
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d == nil || d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// IsTEI reports whether the root element opens a TEI document or corpus.
func (d *Document) IsTEI() bool {
	root := d.Root()
	if root == nil {
		return false
	}
	switch tei.Classify(root.Name()) {
	case tei.RoleDocument, tei.RoleCorpus:
		return true
	}
	return false
}

// XPath executes an XPath query and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, &errors.ParseError{Format: "XPath", Message: err.Error(), Err: err}
	}

	nodes, err := xmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}

	result := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == xmlquery.ElementNode {
			result = append(result, &Node{node: n})
		}
	}
	return result, nil
}

// XPathFirst executes an XPath query and returns the first matching node,
// or nil when nothing matches.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	nodes, err := d.XPath(expr)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// Count evaluates a numeric XPath expression such as count(//p).
func (d *Document) Count(expr string) (int, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return 0, &errors.ParseError{Format: "XPath", Message: err.Error(), Err: err}
	}
	switch v := compiled.Evaluate(xmlquery.CreateXPathNavigator(d.root)).(type) {
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("xpath %q does not evaluate to a number", expr)
	}
}

// Name returns the local element name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the text content of the node and its descendants.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Attr returns the value of a specific attribute.
func (n *Node) Attr(name string) string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Replay walks the whole document and emits element and character events to
// h in document order, as a streaming parse of the same input would.
func (d *Document) Replay(h tei.Handler) {
	if d == nil || d.root == nil {
		return
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		replay(child, h)
	}
}

// Replay emits the events of this element and its subtree to h.
func (n *Node) Replay(h tei.Handler) {
	if n == nil || n.node == nil {
		return
	}
	replay(n.node, h)
}

func replay(n *xmlquery.Node, h tei.Handler) {
	switch n.Type {
	case xmlquery.ElementNode:
		h.StartElement(n.Data, convertAttrs(n.Attr))
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			replay(child, h)
		}
		h.EndElement(n.Data)
	case xmlquery.TextNode, xmlquery.CharDataNode:
		h.CharData(n.Data)
	}
}

func convertAttrs(in []xmlquery.Attr) tei.Attrs {
	if len(in) == 0 {
		return nil
	}
	out := make(tei.Attrs, len(in))
	for i, a := range in {
		space := a.NamespaceURI
		if space == "" {
			space = a.Name.Space
		}
		out[i] = tei.Attr{Space: space, Local: a.Name.Local, Value: a.Value}
	}
	return out
}

// ConvertSelection converts the elements matched by expr with one converter,
// so several selected TEI documents end up in the same corpus. Every match
// must be a TEI, tei or teiCorpus element.
func ConvertSelection(d *Document, expr string, opts ...tei.Option) (*corpus.Corpus, error) {
	nodes, err := d.XPath(expr)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errors.NewNotFound("selection", expr)
	}

	conv := tei.NewConverter(opts...)
	for _, n := range nodes {
		switch tei.Classify(n.Name()) {
		case tei.RoleDocument, tei.RoleCorpus:
		default:
			return nil, errors.NewUnsupported("selection",
				fmt.Sprintf("%q matched <%s>, want a TEI or teiCorpus element", expr, n.Name()))
		}
		n.Replay(conv)
	}
	return conv.Result(), nil
}
