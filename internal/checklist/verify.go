package checklist

import (
	"fmt"
	"sort"

	"github.com/dshills/filingcheck/internal/schema"
)

// Verify compares the bundle against the checklist. Missing is the
// required set minus the classified types present; Unknown documents never
// satisfy a requirement. Structural rules whose target type is absent are
// skipped because the missing entry already reports it. Verify is pure and
// deterministic.
func Verify(bundle schema.SubmissionBundle, c *Checklist) schema.ChecklistResult {
	res := schema.ChecklistResult{
		Process:           c.Name,
		Title:             c.Title,
		Required:          append([]schema.DocumentType{}, c.Required...),
		Present:           []schema.DocumentType{},
		Missing:           []schema.DocumentType{},
		Violations:        []schema.Violation{},
		RequiredDocuments: len(c.Required),
	}
	schema.SortTypes(res.Required)

	have := make(map[schema.DocumentType]bool)
	for _, t := range bundle.Types() {
		have[t] = true
	}
	for _, t := range res.Required {
		if have[t] {
			res.Present = append(res.Present, t)
		} else {
			res.Missing = append(res.Missing, t)
		}
	}
	// Uploaded counts required documents found, not every file received.
	res.DocumentsUploaded = len(res.Present)

	for _, r := range c.Rules {
		docs := targetDocuments(bundle, r.Target)
		if len(docs) == 0 {
			continue
		}
		compiled, err := r.Validate()
		if err != nil {
			res.Violations = append(res.Violations, schema.Violation{
				RuleID:  r.ID,
				Message: fmt.Sprintf("%v: %v", schema.ErrRuleEvaluation, err),
			})
			continue
		}
		failures, err := compiled.EvalBundle(docs)
		if err != nil {
			res.Violations = append(res.Violations, schema.Violation{
				RuleID:  r.ID,
				Message: fmt.Sprintf("%v: %v", schema.ErrRuleEvaluation, err),
			})
			continue
		}
		for _, f := range failures {
			res.Violations = append(res.Violations, schema.Violation{
				RuleID:   r.ID,
				Document: f.Document,
				Message:  r.Description + ": " + f.Detail,
			})
		}
	}

	sort.SliceStable(res.Violations, func(i, j int) bool {
		a, b := res.Violations[i], res.Violations[j]
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Document < b.Document
	})
	return res
}

// targetDocuments selects the bundle documents a structural rule reads.
// DocumentTypeUnknown as target selects every document.
func targetDocuments(bundle schema.SubmissionBundle, target schema.DocumentType) []*schema.Document {
	var out []*schema.Document
	for _, cd := range bundle.Documents {
		if cd.Document == nil {
			continue
		}
		if target == schema.DocumentTypeUnknown || cd.Type == target {
			out = append(out, cd.Document)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Infer picks the process whose required documents best overlap the
// bundle's classified types. Ties prefer the checklist with the larger
// covered fraction, then the name. ok is false when nothing overlaps.
func (r *Registry) Infer(bundle schema.SubmissionBundle) (c *Checklist, ok bool) {
	have := make(map[schema.DocumentType]bool)
	for _, t := range bundle.Types() {
		have[t] = true
	}

	bestOverlap := 0
	bestFraction := 0.0
	for _, name := range r.Names() {
		cand := r.lists[name]
		overlap := 0
		for _, t := range cand.Required {
			if have[t] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		fraction := float64(overlap) / float64(len(cand.Required))
		if overlap > bestOverlap || (overlap == bestOverlap && fraction > bestFraction) {
			c, bestOverlap, bestFraction = cand, overlap, fraction
		}
	}
	return c, c != nil
}
