package schema

import (
	"fmt"
	"strings"
)

// Paragraph is one block of document text in reading order.
type Paragraph struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Style    string `json:"style,omitempty"`
	Position int    `json:"position"`
}

// Annotation is a reviewer comment attached to a paragraph.
type Annotation struct {
	ParagraphID string   `json:"paragraph_id"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Severity    Severity `json:"severity"`
	RuleID      string   `json:"rule_id"`
	Message     string   `json:"message"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Citations   []string `json:"citations,omitempty"`
}

// Document is the normalized in-memory form of one submitted file.
// Paragraphs are immutable once the document has been classified; only
// Annotations change afterwards.
type Document struct {
	Name        string       `json:"name"`
	Path        string       `json:"path,omitempty"`
	Hash        string       `json:"hash"` // "sha256:<hex>" of the original bytes
	Format      string       `json:"format"`
	Paragraphs  []Paragraph  `json:"paragraphs"`
	Annotations []Annotation `json:"annotations,omitempty"`

	// Source is the original container, kept for re-serialisation.
	Source []byte `json:"-"`
}

// Paragraph returns the paragraph with the given id.
func (d *Document) Paragraph(id string) (Paragraph, bool) {
	for _, p := range d.Paragraphs {
		if p.ID == id {
			return p, true
		}
	}
	return Paragraph{}, false
}

// FullText joins all paragraph texts with newlines.
func (d *Document) FullText() string {
	texts := make([]string, len(d.Paragraphs))
	for i, p := range d.Paragraphs {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}

// Clone returns a deep copy of d. Source bytes are shared since they are
// never written.
func (d *Document) Clone() *Document {
	c := *d
	c.Paragraphs = append([]Paragraph(nil), d.Paragraphs...)
	if d.Annotations != nil {
		c.Annotations = make([]Annotation, len(d.Annotations))
		for i, a := range d.Annotations {
			a.Citations = append([]string(nil), a.Citations...)
			c.Annotations[i] = a
		}
	}
	return &c
}

// Validate checks the structural invariants of the document model.
// Failures wrap ErrMalformedDocument.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil document", ErrMalformedDocument)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: document name is required", ErrMalformedDocument)
	}
	seen := make(map[string]struct{}, len(d.Paragraphs))
	last := -1
	for i, p := range d.Paragraphs {
		if p.ID == "" {
			return fmt.Errorf("%w: %s: paragraph[%d] has no id", ErrMalformedDocument, d.Name, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate paragraph id %q", ErrMalformedDocument, d.Name, p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Position <= last {
			return fmt.Errorf("%w: %s: paragraph %q position %d is not ascending", ErrMalformedDocument, d.Name, p.ID, p.Position)
		}
		last = p.Position
	}
	for i, a := range d.Annotations {
		if _, ok := seen[a.ParagraphID]; !ok {
			return fmt.Errorf("%w: %s: annotation[%d] references unknown paragraph %q", ErrMalformedDocument, d.Name, i, a.ParagraphID)
		}
	}
	return nil
}

// SubmissionBundle is the set of documents submitted together for one
// process. It lives for a single review request.
type SubmissionBundle struct {
	Documents []ClassifiedDocument
}

// ClassifiedDocument pairs a document with its assigned type.
type ClassifiedDocument struct {
	Document   *Document
	Type       DocumentType
	Confidence float64
}

// Types returns the distinct known types in the bundle, sorted.
func (b SubmissionBundle) Types() []DocumentType {
	set := make(map[DocumentType]struct{})
	for _, cd := range b.Documents {
		if cd.Type != DocumentTypeUnknown {
			set[cd.Type] = struct{}{}
		}
	}
	out := make([]DocumentType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	SortTypes(out)
	return out
}
