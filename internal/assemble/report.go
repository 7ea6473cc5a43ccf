package assemble

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dshills/filingcheck/internal/review"
	"github.com/dshills/filingcheck/internal/schema"
)

// ToolName is reported in every findings report.
const ToolName = "filingcheck"

// Outcome is what the pipeline learned about one document.
type Outcome struct {
	Name        string
	Document    *schema.Document
	Type        schema.DocumentType
	Confidence  float64
	Flags       []schema.RedFlag
	Suggestions []schema.Suggestion
	Diagnostics []string
	// Err is set when the document could not be loaded or reviewed.
	Err error
}

// Input collects everything the report is built from.
type Input struct {
	Version   string
	RunID     string
	Process   string
	Outcomes  []Outcome
	Checklist schema.ChecklistResult
	Degraded  []string
	Meta      schema.Meta
}

// Report builds the findings report. Documents are ordered by name; flags
// and suggestions follow document order, then the per-document order the
// engines produced. Summary counts and verdict cover every finding.
func Report(in Input) *schema.Report {
	outcomes := append([]Outcome(nil), in.Outcomes...)
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].Name < outcomes[j].Name })

	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &schema.Report{
		Tool:        ToolName,
		Version:     in.Version,
		RunID:       runID,
		Process:     in.Process,
		Documents:   make([]schema.DocumentReport, 0, len(outcomes)),
		Checklist:   in.Checklist,
		RedFlags:    []schema.RedFlag{},
		Suggestions: []schema.Suggestion{},
		Degraded:    append([]string{}, in.Degraded...),
		Meta:        in.Meta,
	}
	for _, o := range outcomes {
		dr := schema.DocumentReport{
			Name:        o.Name,
			Type:        o.Type,
			Confidence:  o.Confidence,
			FlagCount:   len(o.Flags),
			Diagnostics: o.Diagnostics,
		}
		if o.Document != nil {
			dr.Hash = o.Document.Hash
			dr.Paragraphs = len(o.Document.Paragraphs)
		}
		if o.Err != nil {
			dr.Error = o.Err.Error()
		}
		r.Documents = append(r.Documents, dr)
		r.RedFlags = append(r.RedFlags, o.Flags...)
		r.Suggestions = append(r.Suggestions, o.Suggestions...)
	}
	if r.Checklist.Required == nil {
		r.Checklist.Required = []schema.DocumentType{}
	}
	if r.Checklist.Present == nil {
		r.Checklist.Present = []schema.DocumentType{}
	}
	if r.Checklist.Missing == nil {
		r.Checklist.Missing = []schema.DocumentType{}
	}
	if r.Checklist.Violations == nil {
		r.Checklist.Violations = []schema.Violation{}
	}
	review.Summarize(r)
	return r
}
