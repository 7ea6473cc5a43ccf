package checklist

import (
	"github.com/dshills/filingcheck/internal/rules"
	"github.com/dshills/filingcheck/internal/schema"
)

func branchRegistration() *Checklist {
	return &Checklist{
		Name:  "branch_registration",
		Title: "Branch Registration",
		Required: []schema.DocumentType{
			schema.DocumentTypeArticlesOfAssociation,
			schema.DocumentTypeBoardResolution,
			schema.DocumentTypeRegistrationForm,
			schema.DocumentTypeUBODeclaration,
		},
		Rules: []rules.StructuralRule{
			{
				ID:          "resolution_approves_branch",
				Description: "The parent company's board resolution must approve the branch",
				Target:      schema.DocumentTypeBoardResolution,
				Predicate: rules.Predicate{
					Kind:     rules.KindKeyword,
					Patterns: []string{`\bbranch\b`},
				},
			},
			{
				ID:          "company_name_consistent",
				Description: "The parent company name must be identical across all documents",
				Predicate: rules.Predicate{
					Kind:     rules.KindCrossDocumentEquality,
					Patterns: []string{companyNamePattern},
				},
			},
		},
	}
}
