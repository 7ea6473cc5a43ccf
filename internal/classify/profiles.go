package classify

import "github.com/dshills/filingcheck/internal/schema"

// BuiltinProfiles returns the signal profiles for every known document type.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			Type: schema.DocumentTypeArticlesOfAssociation,
			Signals: []Signal{
				{`articles\s+of\s+association`, 3},
				{`share\s+capital`, 1},
				{`general\s+meetings?`, 1},
				{`transfer\s+of\s+shares`, 1},
				{`powers\s+of\s+(the\s+)?directors|directors'\s+powers`, 1},
				{`model\s+articles`, 1},
			},
			FilenameHints: []string{`\barticles\b`, `\baoa\b`},
		},
		{
			Type: schema.DocumentTypeMemorandumOfAssociation,
			Signals: []Signal{
				{`memorandum\s+of\s+association`, 3},
				{`subscribers?`, 1.5},
				{`desirous\s+of\s+being\s+formed`, 1},
				{`liability\s+of\s+the\s+members\s+is\s+limited`, 1},
			},
			FilenameHints: []string{`\bmemorandum\b`, `\bmoa\b`},
		},
		{
			Type: schema.DocumentTypeBoardResolution,
			Signals: []Signal{
				{`board\s+resolutions?`, 3},
				{`resolutions?\s+of\s+the\s+board(\s+of\s+directors)?`, 2},
				{`(it\s+(is|was)\s+(hereby\s+)?resolved|resolved\s+that)`, 1.5},
				{`directors?\s+present`, 1},
				{`\bquorum\b`, 1},
				{`written\s+resolutions?\s+of\s+the\s+directors`, 1.5},
			},
			FilenameHints: []string{`\bboard\b`, `\bresolution\b`},
		},
		{
			Type: schema.DocumentTypeShareholderResolution,
			Signals: []Signal{
				{`(shareholders?'?|members'?)\s+resolutions?`, 3},
				{`resolutions?\s+of\s+the\s+(shareholders|members)`, 2},
				{`special\s+resolution`, 1.5},
				{`ordinary\s+resolution`, 1},
				{`(it\s+(is|was)\s+(hereby\s+)?resolved|resolved\s+that)`, 0.5},
			},
			FilenameHints: []string{`\bshareholders?\b`, `\bmembers\s+resolution\b`},
		},
		{
			Type: schema.DocumentTypeRegistrationForm,
			Signals: []Signal{
				{`incorporation\s+application(\s+form)?`, 3},
				{`application\s+for\s+incorporation`, 3},
				{`proposed\s+(company\s+)?name`, 1.5},
				{`registered\s+office\s+address`, 1},
				{`type\s+of\s+(company|entity)`, 1},
				{`\bapplicant\b`, 0.5},
			},
			FilenameHints: []string{`\bapplication\b`, `\bregistration\s+form\b`, `\bincorporation\s+form\b`},
		},
		{
			Type: schema.DocumentTypeRegisterOfMembers,
			Signals: []Signal{
				{`register\s+of\s+members`, 3},
				{`date\s+of\s+entry`, 1},
				{`number\s+of\s+shares`, 1},
				{`class\s+of\s+shares`, 1},
			},
			FilenameHints: []string{`\bregister\s+of\s+members\b`, `\bmembers\s+register\b`},
		},
		{
			Type: schema.DocumentTypeRegisterOfDirectors,
			Signals: []Signal{
				{`register\s+of\s+directors`, 3},
				{`date\s+of\s+appointment`, 1.5},
				{`residential\s+address`, 1},
				{`\bnationality\b`, 0.5},
			},
			FilenameHints: []string{`\bregister\s+of\s+directors\b`, `\bdirectors\s+register\b`},
		},
		{
			Type: schema.DocumentTypeUBODeclaration,
			Signals: []Signal{
				{`ultimate\s+beneficial\s+owner`, 3},
				{`beneficial\s+owner(ship)?`, 2},
				{`\bUBO\b`, 2},
				{`percentage\s+of\s+(ownership|shares|voting\s+rights)`, 1},
			},
			FilenameHints: []string{`\bubo\b`, `\bbeneficial\b`},
		},
		{
			Type: schema.DocumentTypeChangeOfAddressNotice,
			Signals: []Signal{
				{`change\s+of\s+registered\s+(office\s+)?address`, 3},
				{`new\s+registered\s+(office\s+)?address`, 2},
				{`(previous|current|old)\s+registered\s+(office\s+)?address`, 1.5},
				{`effective\s+date`, 0.5},
			},
			FilenameHints: []string{`\bchange\s+of\s+address\b`, `\baddress\s+change\b`},
		},
	}
}
