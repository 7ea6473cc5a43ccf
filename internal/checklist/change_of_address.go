package checklist

import (
	"github.com/dshills/filingcheck/internal/rules"
	"github.com/dshills/filingcheck/internal/schema"
)

func changeOfRegisteredAddress() *Checklist {
	return &Checklist{
		Name:  "change_of_registered_address",
		Title: "Change of Registered Address",
		Required: []schema.DocumentType{
			schema.DocumentTypeBoardResolution,
			schema.DocumentTypeChangeOfAddressNotice,
		},
		Rules: []rules.StructuralRule{
			{
				ID:          "notice_states_new_address",
				Description: "The notice must state the new registered address",
				Target:      schema.DocumentTypeChangeOfAddressNotice,
				Predicate: rules.Predicate{
					Kind:     rules.KindKeyword,
					Patterns: []string{`new\s+registered\s+(?:office\s+)?address`},
				},
			},
			{
				ID:          "resolution_approves_relocation",
				Description: "The board resolution must approve the change of registered address",
				Target:      schema.DocumentTypeBoardResolution,
				Predicate: rules.Predicate{
					Kind:     rules.KindKeyword,
					Patterns: []string{`registered\s+(?:office\s+)?address|registered\s+office`},
				},
			},
		},
	}
}
