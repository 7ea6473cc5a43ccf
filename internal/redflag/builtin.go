package redflag

import (
	"github.com/dshills/filingcheck/internal/rules"
	"github.com/dshills/filingcheck/internal/schema"
)

const signaturePattern = `signature|signed\s+by|for\s+and\s+on\s+behalf|authori[sz]ed\s+signatory`

const monthPattern = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*`

// BuiltinRules returns the default red-flag rule table for ADGM filings.
func BuiltinRules() []rules.FlagRule {
	return []rules.FlagRule{
		{
			ID:          "wrong_jurisdiction",
			Severity:    schema.SeverityHigh,
			Description: "Clause refers to a court or law outside ADGM; ADGM Courts and ADGM law should govern",
			Predicate: rules.Predicate{
				Kind: rules.KindPattern,
				Patterns: []string{
					`\bUAE\s+Federal\s+(?:Courts?|Laws?)\b`,
					`\bUnited\s+Arab\s+Emirates\s+Federal\s+Courts?\b`,
					`\bDIFC\b(?:\s+Courts?)?`,
					`\bDubai\s+(?:International\s+Financial\s+Centre|Courts?)\b`,
					`governed\s+by\s+(?:and\s+construed\s+in\s+accordance\s+with\s+)?the\s+laws?\s+of\s+([^.,;\n]+)`,
				},
				Unless: `abu\s+dhabi\s+global\s+market|\bADGM\b`,
			},
		},
		{
			ID:          "ambiguous_language",
			Severity:    schema.SeverityMedium,
			Description: "Non-binding or ambiguous wording weakens an obligation",
			Predicate: rules.Predicate{
				Kind: rules.KindPattern,
				Patterns: []string{
					`\bbest\s+(?:endeavou?rs|efforts)\b`,
					`\breasonable\s+(?:endeavou?rs|efforts)\b`,
					// "May" with a capital is the month in "Dated 1 May 2025".
					`\b(?:(?-i:may)|might|endeavou?r)\b`,
					`\bas\s+soon\s+as\s+practicable\b`,
				},
			},
		},
		{
			ID:          "missing_signature_block",
			Severity:    schema.SeverityHigh,
			Description: "Document has no signature block or authorised signatory section",
			Predicate: rules.Predicate{
				Kind:     rules.KindAbsence,
				Patterns: []string{signaturePattern},
			},
		},
		{
			ID:          "missing_witness_line",
			Severity:    schema.SeverityMedium,
			Description: "Signature block has no witness line",
			Predicate: rules.Predicate{
				Kind:     rules.KindAbsence,
				Patterns: []string{`\bwitness`},
				Requires: signaturePattern,
				Anchor:   signaturePattern,
			},
		},
		{
			ID:          "superseded_regulation",
			Severity:    schema.SeverityMedium,
			Description: "Cites the ADGM Companies Regulations 2015, superseded by the Companies Regulations 2020",
			Predicate: rules.Predicate{
				Kind:     rules.KindPattern,
				Patterns: []string{`\bcompanies\s+regulations\s+2015\b`},
			},
		},
		{
			ID:          "placeholder_text",
			Severity:    schema.SeverityMedium,
			Description: "Template placeholder left in the document",
			Predicate: rules.Predicate{
				Kind: rules.KindPattern,
				Patterns: []string{
					`\[(?:insert|name|date|address|company|tbd|tbc)[^\]]*\]`,
					`\bTB[DC]\b`,
					`\bX{3,}\b`,
					`<<[^>]*>>`,
				},
			},
		},
		{
			ID:          "missing_date",
			Severity:    schema.SeverityLow,
			Description: "Document is not dated",
			Predicate: rules.Predicate{
				Kind: rules.KindAbsence,
				Patterns: []string{
					`\b\d{1,2}(?:st|nd|rd|th)?\s+(?:day\s+of\s+)?` + monthPattern + `,?\s+\d{4}\b`,
					`\b` + monthPattern + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`,
					`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b`,
					`\b\d{4}-\d{2}-\d{2}\b`,
				},
				Anchor: `\bdated?\b`,
			},
		},
	}
}
