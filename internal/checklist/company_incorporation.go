package checklist

import (
	"github.com/dshills/filingcheck/internal/rules"
	"github.com/dshills/filingcheck/internal/schema"
)

// companyNamePattern captures the company name stated on a line such as
// "Company Name: Acme Holdings Ltd".
const companyNamePattern = `(?:company\s+name|name\s+of\s+(?:the\s+)?company)\s*[:\-]\s*([^\n]+)`

func companyIncorporation() *Checklist {
	return &Checklist{
		Name:  "company_incorporation",
		Title: "Company Incorporation",
		Required: []schema.DocumentType{
			schema.DocumentTypeArticlesOfAssociation,
			schema.DocumentTypeBoardResolution,
			schema.DocumentTypeRegistrationForm,
		},
		Rules: []rules.StructuralRule{
			{
				ID:          "company_name_consistent",
				Description: "The company name must be identical across all documents",
				Predicate: rules.Predicate{
					Kind:     rules.KindCrossDocumentEquality,
					Patterns: []string{companyNamePattern},
				},
			},
			{
				ID:          "articles_registered_office",
				Description: "Articles of Association must state the registered office in ADGM",
				Target:      schema.DocumentTypeArticlesOfAssociation,
				Predicate: rules.Predicate{
					Kind:     rules.KindKeyword,
					Patterns: []string{`registered\s+office`},
				},
			},
			{
				ID:          "resolution_has_resolutions",
				Description: "The board resolution must contain at least one resolved clause",
				Target:      schema.DocumentTypeBoardResolution,
				Predicate: rules.Predicate{
					Kind:     rules.KindClauseCount,
					Patterns: []string{`\bresolved\b`},
					Min:      1,
				},
			},
		},
	}
}
