package corpus

// Stats summarizes the content of a corpus.
type Stats struct {
	Documents    int `json:"documents"`
	Abstract     int `json:"abstract_paragraphs"`
	Body         int `json:"body_paragraphs"`
	RefSpans     int `json:"ref_spans"`
	ListSpans    int `json:"list_spans"`
	FormulaSpans int `json:"formula_spans"`
	Annotations  int `json:"annotations"`
}

// Paragraphs returns the total number of abstract and body paragraphs.
func (s Stats) Paragraphs() int {
	return s.Abstract + s.Body
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Documents += other.Documents
	s.Abstract += other.Abstract
	s.Body += other.Body
	s.RefSpans += other.RefSpans
	s.ListSpans += other.ListSpans
	s.FormulaSpans += other.FormulaSpans
	s.Annotations += other.Annotations
}

// Stats counts documents, paragraphs and spans in the corpus.
func (c *Corpus) Stats() Stats {
	var s Stats
	if c == nil {
		return s
	}
	for _, doc := range c.Documents {
		s.Add(doc.Stats())
	}
	return s
}

// Stats counts paragraphs and spans in the document.
func (d *Document) Stats() Stats {
	s := Stats{Documents: 1, Abstract: len(d.Abstract), Body: len(d.Body)}
	for _, group := range [][]*Paragraph{d.Abstract, d.Body} {
		for _, p := range group {
			s.RefSpans += len(p.RefSpans)
			s.ListSpans += len(p.ListSpans)
			s.FormulaSpans += len(p.FormulaSpans)
			s.Annotations += len(p.Annotations)
		}
	}
	return s
}
