// Package render turns a findings report into JSON for tooling or Markdown
// for reviewers.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
)

// Renderer formats a Report into bytes for output.
type Renderer interface {
	Render(report *schema.Report) ([]byte, error)
}

var formats = map[string]func() Renderer{
	"json":     func() Renderer { return jsonRenderer{} },
	"md":       func() Renderer { return &markdownRenderer{} },
	"markdown": func() Renderer { return &markdownRenderer{} },
}

// Formats lists the accepted format names.
func Formats() []string {
	out := make([]string, 0, len(formats))
	for f := range formats {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// NewRenderer returns a Renderer for the given format string. An empty
// format means json.
func NewRenderer(format string) (Renderer, error) {
	if format == "" {
		format = "json"
	}
	mk, ok := formats[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unknown format %q: supported formats are %s", format, strings.Join(Formats(), ", "))
	}
	return mk(), nil
}
