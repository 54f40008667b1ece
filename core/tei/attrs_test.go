package tei

import "testing"

func TestAttrsLookup(t *testing.T) {
	attrs := Attrs{
		{Local: "type", Value: "bibr"},
		{Space: XMLNamespace, Local: "id", Value: "b1"},
		{Space: "xml", Local: "lang", Value: "de"},
		{Space: "http://www.w3.org/1999/xlink", Local: "href", Value: "http://x"},
	}

	tests := []struct {
		name   string
		lookup string
		want   string
		wantOK bool
	}{
		{"plain attribute", "type", "bibr", true},
		{"xml prefix resolved", "xml:id", "b1", true},
		{"xml prefix literal", "xml:lang", "de", true},
		{"unprefixed does not match namespaced", "id", "", false},
		{"unresolved prefix", "xlink:href", "", false},
		{"missing", "target", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := attrs.Lookup(tt.lookup)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Lookup(%q) = %q, %v, want %q, %v", tt.lookup, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAttrsLookupPresentButEmpty(t *testing.T) {
	attrs := Attrs{{Local: "type", Value: ""}}
	v, ok := attrs.Lookup("type")
	if !ok || v != "" {
		t.Errorf("Lookup(type) = %q, %v, want \"\", true", v, ok)
	}
	if got := attrs.Get("subtype"); got != "" {
		t.Errorf("Get(subtype) = %q, want empty", got)
	}
	var none Attrs
	if _, ok := none.Lookup("type"); ok {
		t.Error("Lookup on nil Attrs reported a value")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want Role
	}{
		{"teiCorpus", RoleCorpus},
		{"TEI", RoleDocument},
		{"tei", RoleDocument},
		{"teiHeader", RoleHeader},
		{"div3", RoleDiv},
		{"group", RoleDiv},
		{"figDesc", RoleParagraph},
		{"label", RoleItem},
		{"rs", RoleEntity},
		{"emph", RoleStyled},
		{"mn", RoleMath},
		{"figure", RoleSkip},
		{"Tei", RoleSkip},
		{"", RoleSkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.name); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestRoleString(t *testing.T) {
	if got := RoleParagraph.String(); got != "paragraph" {
		t.Errorf("String() = %q, want paragraph", got)
	}
	if got := Role(-1).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
	if got := Role(1000).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}
