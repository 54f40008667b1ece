package tei

// Role is the structural meaning the converter assigns to an element name.
type Role int

const (
	// RoleSkip marks elements the converter does not know. Text directly
	// inside such an element is dropped.
	RoleSkip Role = iota
	RoleCorpus
	RoleDocument
	RoleHeader
	RoleText
	RoleFileDesc
	RoleIdno
	RoleTitle
	RoleRespStmt
	RoleResp
	RoleName
	RoleAbstract
	RoleBody
	RoleDiv
	RoleHead
	RoleParagraph
	RoleNote
	RoleList
	RoleItem
	RoleFormula
	RoleRef
	RoleEntity
	RoleStyled
	RoleMath
)

var roleNames = [...]string{
	RoleSkip:      "skip",
	RoleCorpus:    "corpus",
	RoleDocument:  "document",
	RoleHeader:    "header",
	RoleText:      "text",
	RoleFileDesc:  "fileDesc",
	RoleIdno:      "idno",
	RoleTitle:     "title",
	RoleRespStmt:  "respStmt",
	RoleResp:      "resp",
	RoleName:      "name",
	RoleAbstract:  "abstract",
	RoleBody:      "body",
	RoleDiv:       "div",
	RoleHead:      "head",
	RoleParagraph: "paragraph",
	RoleNote:      "note",
	RoleList:      "list",
	RoleItem:      "item",
	RoleFormula:   "formula",
	RoleRef:       "ref",
	RoleEntity:    "entity",
	RoleStyled:    "styled",
	RoleMath:      "math",
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return "unknown"
	}
	return roleNames[r]
}

// roles maps TEI local names to roles. Names are case sensitive, except that
// both TEI and tei open a document.
var roles = map[string]Role{
	"teiCorpus": RoleCorpus,
	"TEI":       RoleDocument,
	"tei":       RoleDocument,
	"teiHeader": RoleHeader,
	"text":      RoleText,
	"fileDesc":  RoleFileDesc,
	"idno":      RoleIdno,
	"title":     RoleTitle,
	"respStmt":  RoleRespStmt,
	"resp":      RoleResp,
	"name":      RoleName,
	"abstract":  RoleAbstract,
	"body":      RoleBody,
	"div":       RoleDiv,
	"div1":      RoleDiv,
	"div2":      RoleDiv,
	"div3":      RoleDiv,
	"div4":      RoleDiv,
	"div5":      RoleDiv,
	"div6":      RoleDiv,
	"div7":      RoleDiv,
	"group":     RoleDiv,
	"head":      RoleHead,
	"p":         RoleParagraph,
	"figDesc":   RoleParagraph,
	"note":      RoleNote,
	"list":      RoleList,
	"item":      RoleItem,
	"label":     RoleItem,
	"formula":   RoleFormula,
	"ref":       RoleRef,
	"rs":        RoleEntity,
	"hi":        RoleStyled,
	"emph":      RoleStyled,
	"mi":        RoleMath,
	"mo":        RoleMath,
	"mn":        RoleMath,
}

// Classify returns the role of a local element name.
func Classify(name string) Role {
	if r, ok := roles[name]; ok {
		return r
	}
	return RoleSkip
}
