package tei

import "strings"

// XMLNamespace is the namespace bound to the reserved xml: prefix.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// Attr is a single attribute as reported by the XML parser.
type Attr struct {
	Space string
	Local string
	Value string
}

// Attrs is the attribute list of an element.
type Attrs []Attr

// Lookup returns the value of the named attribute and whether it is present.
// A name with the xml: prefix (xml:id, xml:lang) matches attributes in the
// XML namespace whether the parser resolved the prefix or left it literal.
// Unprefixed names only match attributes without a namespace.
func (a Attrs) Lookup(name string) (string, bool) {
	space, local := "", name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		space, local = name[:i], name[i+1:]
	}
	for _, attr := range a {
		if attr.Local != local {
			continue
		}
		switch space {
		case "":
			if attr.Space == "" {
				return attr.Value, true
			}
		case "xml":
			if attr.Space == XMLNamespace || attr.Space == "xml" {
				return attr.Value, true
			}
		default:
			if attr.Space == space {
				return attr.Value, true
			}
		}
	}
	return "", false
}

// Get returns the named attribute value, or "" when absent.
func (a Attrs) Get(name string) string {
	v, _ := a.Lookup(name)
	return v
}
