package render

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/dshills/filingcheck/internal/schema"
)

type markdownRenderer struct{}

var mdFuncs = template.FuncMap{
	"upper": func(s schema.Severity) string { return strings.ToUpper(string(s)) },
	"join":  strings.Join,
	"pct":   func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	"score": func(f float64) string { return fmt.Sprintf("%.2f", f) },
}

var mdTemplate = template.Must(template.New("report").Funcs(mdFuncs).Parse(`# Filing Review Report

**Process:** {{ .Checklist.Title }} ({{ .Process }})
**Verdict:** {{ .Summary.Verdict }}
**Score:** {{ .Summary.Score }}/100
**High:** {{ .Summary.HighCount }} | **Medium:** {{ .Summary.MediumCount }} | **Low:** {{ .Summary.LowCount }} | **Missing documents:** {{ .Summary.MissingCount }}
> Note: counts reflect all findings; --severity-threshold may hide some from this output.
{{ if .Degraded }}
> **Degraded:**{{ range .Degraded }} {{ . }};{{ end }}
{{ end }}
---

## Documents

| Document | Type | Confidence | Flags |
|---|---|---|---|
{{ range .Documents }}| {{ .Name }} | {{ .Type.Label }} | {{ pct .Confidence }} | {{ if .Error }}error: {{ .Error }}{{ else }}{{ .FlagCount }}{{ end }} |
{{ end }}
## Checklist

Uploaded {{ .Checklist.DocumentsUploaded }} of {{ .Checklist.RequiredDocuments }} required documents.
{{ if .Checklist.Missing }}
**Missing:**
{{ range .Checklist.Missing }}- {{ .Label }}
{{ end }}{{ end }}{{ if .Checklist.Violations }}
**Violations:**
{{ range .Checklist.Violations }}- ` + "`" + `{{ .RuleID }}` + "`" + `{{ if .Document }} ({{ .Document }}){{ end }}: {{ .Message }}
{{ end }}{{ end }}{{ if .RedFlags }}
---

## Red Flags
{{ range .RedFlags }}
### {{ upper .Severity }} · {{ .RuleID }} · {{ .Document }} ({{ .ParagraphID }})
{{ .Description }}{{ if .Match }}

> "{{ .Match }}"{{ end }}
{{ end }}{{ end }}{{ if .Suggestions }}
---

## Suggestions
{{ range .Suggestions }}
**{{ .Flag.RuleID }}** in {{ .Flag.Document }} ({{ .Flag.ParagraphID }}){{ if .Grounded }} · top score {{ score .TopScore }}{{ else }} · ungrounded{{ end }}

{{ .Text }}
{{ if .Citations }}
*Citations:* {{ join .Citations "; " }}
{{ end }}{{ if .Rewrite }}
Rewrite (see --patch-out for machine-applicable diff):
` + "```" + `
{{ .Rewrite }}
` + "```" + `
{{ end }}{{ end }}{{ end }}
---
*Run: {{ .RunID }} | Composer: {{ .Meta.Model }} | Embedder: {{ .Meta.Embedder }} | k={{ .Meta.TopK }} | grounding floor {{ .Meta.GroundingFloor }}*
`))

func (r *markdownRenderer) Render(report *schema.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := mdTemplate.Execute(&buf, report); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.Bytes(), nil
}
