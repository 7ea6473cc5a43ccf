package suggest

import (
	"context"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
)

// ruleTemplate is the canned remediation for one rule.
type ruleTemplate struct {
	action  string
	rewrite func(clause string, flag schema.RedFlag) string
}

var templates = map[string]ruleTemplate{
	"wrong_jurisdiction": {
		action:  "Replace the reference with the ADGM Courts and state that the document is governed by the laws of the Abu Dhabi Global Market.",
		rewrite: jurisdictionRewrite,
	},
	"ambiguous_language": {
		action: "Replace permissive or best-efforts wording with a binding obligation such as \"shall\", or state the exact standard the party must meet.",
	},
	"missing_signature_block": {
		action: "Add a signature block naming each authorised signatory, their capacity and the date of signing.",
	},
	"missing_witness_line": {
		action: "Add a witness line with the witness's name, signature and address beneath each signature.",
	},
	"superseded_regulation": {
		action:  "Cite the ADGM Companies Regulations 2020, which replaced the 2015 regulations.",
		rewrite: supersededRewrite,
	},
	"placeholder_text": {
		action: "Complete the placeholder with the actual value before filing.",
	},
	"missing_date": {
		action: "Date the document in full, for example \"Dated 12 March 2025\".",
	},
}

const genericAction = "Review the flagged clause and amend it to comply with the applicable ADGM requirements."

const ungroundedSuffix = " Check the clause against the current ADGM regulations before filing."

// TemplateComposer is the deterministic composer. It never fails and never
// calls out of process.
type TemplateComposer struct{}

// NewTemplateComposer returns the template composer.
func NewTemplateComposer() *TemplateComposer { return &TemplateComposer{} }

// Name implements Composer.
func (*TemplateComposer) Name() string { return "template" }

// Compose implements Composer.
func (*TemplateComposer) Compose(_ context.Context, req Request) (Draft, error) {
	t, ok := templates[req.Flag.RuleID]
	action := genericAction
	if ok {
		action = t.action
	}

	var sb strings.Builder
	if req.Flag.Description != "" {
		sb.WriteString(req.Flag.Description)
		sb.WriteString(". ")
	}
	sb.WriteString(action)
	if !req.Grounded() {
		sb.WriteString(ungroundedSuffix)
	}

	d := Draft{Text: sb.String()}
	if ok && t.rewrite != nil {
		d.Rewrite = t.rewrite(req.Clause, req.Flag)
	}
	return d, nil
}

// matchSpan returns the flagged span of clause, or false when the offsets
// no longer agree with the text.
func matchSpan(clause string, f schema.RedFlag) (string, bool) {
	if f.Start < 0 || f.End <= f.Start || f.End > len(clause) {
		return "", false
	}
	span := clause[f.Start:f.End]
	if f.Match != "" && span != f.Match {
		return "", false
	}
	return span, true
}

func jurisdictionRewrite(clause string, f schema.RedFlag) string {
	span, ok := matchSpan(clause, f)
	if !ok {
		return ""
	}
	lower := strings.ToLower(span)
	var repl string
	switch {
	case strings.Contains(lower, "court") || strings.Contains(lower, "difc") || strings.Contains(lower, "financial centre"):
		repl = "ADGM Courts"
	case strings.Contains(lower, "law"):
		// "UAE Federal Laws"
		repl = "the laws of the Abu Dhabi Global Market"
	default:
		// The territory after "governed by the laws of", e.g. "England and Wales".
		repl = "the Abu Dhabi Global Market"
	}
	return clause[:f.Start] + repl + clause[f.End:]
}

func supersededRewrite(clause string, f schema.RedFlag) string {
	span, ok := matchSpan(clause, f)
	if !ok {
		return ""
	}
	return clause[:f.Start] + strings.Replace(span, "2015", "2020", 1) + clause[f.End:]
}
