package llm

import (
	"fmt"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
)

const systemPromptBase = `You are a corporate filings reviewer for the Abu Dhabi Global Market (ADGM).
You are given one clause from a filing document, the defect a rule engine flagged in it,
and excerpts from the ADGM regulations that were retrieved as reference.

Your task is to explain the defect and propose a minimal remediation for that clause only.

Rules:
- Base the remediation only on the reference excerpts and the clause text
- Do not invent regulation names, section numbers or citations
- Do not include citations in your answer; they are attached separately
- If the clause is in fact compliant, say so with "compliant": true
- The rewrite, when given, must be a full replacement for the clause text
- Keep the suggestion under 80 words

Output rules:
- Return JSON only, no prose, no markdown fences, no explanation
- JSON must match the provided schema exactly`

const ungroundedText = `
No reference excerpts were retrieved. Give a generic remediation and state that the
clause should be checked against the current ADGM regulations.`

const schemaExample = `{
  "compliant": false,
  "issue": "Short statement of what is wrong with the clause",
  "suggestion": "Minimal corrective action in plain language",
  "rewrite": "Optional full replacement text for the clause, or empty"
}`

// ClauseContext is everything the model sees about one flagged clause.
type ClauseContext struct {
	RuleID      string
	Severity    schema.Severity
	Description string
	Document    string
	Clause      string
	// Template is the deterministic suggestion the model should refine.
	Template string
	Passages []schema.ScoredPassage
}

// BuildSystemPrompt returns the system prompt for clause remediation.
func BuildSystemPrompt(grounded bool) string {
	if grounded {
		return systemPromptBase
	}
	return systemPromptBase + ungroundedText
}

// BuildUserPrompt renders the flagged clause, the reference excerpts and the
// JSON schema example.
func BuildUserPrompt(c ClauseContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Rule %s (%s severity): %s\n\n", c.RuleID, c.Severity, c.Description)

	fmt.Fprintf(&sb, "<clause document=%q>\n", c.Document)
	sb.WriteString(c.Clause)
	if !strings.HasSuffix(c.Clause, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("</clause>\n")

	for i, p := range c.Passages {
		fmt.Fprintf(&sb, "\n<reference n=\"%d\" source=%q>\n", i+1, p.Passage.Citation)
		sb.WriteString(p.Passage.Text)
		sb.WriteString("\n</reference>\n")
	}

	if c.Template != "" {
		sb.WriteString("\nDraft suggestion to refine:\n")
		sb.WriteString(c.Template)
		sb.WriteString("\n")
	}

	sb.WriteString("\nReturn your answer as JSON with this structure:\n")
	sb.WriteString(schemaExample)

	return sb.String()
}
