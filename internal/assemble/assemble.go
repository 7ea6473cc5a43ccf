// Package assemble attaches red flags and suggestions to documents as
// annotations and builds the findings report.
package assemble

import (
	"fmt"
	"sort"

	"github.com/dshills/filingcheck/internal/schema"
)

// Annotate returns a copy of doc carrying one annotation per flag, replacing
// any annotations doc already had. Suggestions are matched to flags by rule
// and paragraph. Annotations are ordered by paragraph position, then
// severity (high first), then rule id. doc is not modified.
func Annotate(doc *schema.Document, flags []schema.RedFlag, suggestions []schema.Suggestion) (*schema.Document, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	byKey := make(map[string]schema.Suggestion, len(suggestions))
	for _, s := range suggestions {
		if s.Flag.Document == doc.Name {
			byKey[s.Flag.Key()] = s
		}
	}

	pos := make(map[string]int, len(doc.Paragraphs))
	for _, p := range doc.Paragraphs {
		pos[p.ID] = p.Position
	}

	out := doc.Clone()
	out.Annotations = make([]schema.Annotation, 0, len(flags))
	for _, f := range flags {
		if f.Document != doc.Name {
			return nil, fmt.Errorf("%w: flag %s belongs to %s, not %s", schema.ErrMalformedDocument, f.RuleID, f.Document, doc.Name)
		}
		if _, ok := pos[f.ParagraphID]; !ok {
			return nil, fmt.Errorf("%w: %s: flag %s references unknown paragraph %q", schema.ErrMalformedDocument, doc.Name, f.RuleID, f.ParagraphID)
		}
		a := schema.Annotation{
			ParagraphID: f.ParagraphID,
			Start:       f.Start,
			End:         f.End,
			Severity:    f.Severity,
			RuleID:      f.RuleID,
			Message:     f.Description,
		}
		if s, ok := byKey[f.Key()]; ok {
			a.Suggestion = s.Text
			a.Citations = append([]string(nil), s.Citations...)
		}
		out.Annotations = append(out.Annotations, a)
	}

	sort.SliceStable(out.Annotations, func(i, j int) bool {
		a, b := out.Annotations[i], out.Annotations[j]
		if pos[a.ParagraphID] != pos[b.ParagraphID] {
			return pos[a.ParagraphID] < pos[b.ParagraphID]
		}
		if sa, sb := schema.SeverityOrdinal(a.Severity), schema.SeverityOrdinal(b.Severity); sa != sb {
			return sa > sb
		}
		return a.RuleID < b.RuleID
	})
	return out, nil
}

// Strip returns a copy of doc without annotations. Strip(Annotate(d)) has
// the same paragraphs as d.
func Strip(doc *schema.Document) *schema.Document {
	out := doc.Clone()
	out.Annotations = nil
	return out
}
