package render

import (
	"bytes"
	"encoding/json"

	"github.com/dshills/filingcheck/internal/schema"
)

// jsonRenderer keeps clause text readable: "&" and "<" in quoted filing
// text are written as-is rather than as \u escapes.
type jsonRenderer struct{}

func (jsonRenderer) Render(report *schema.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
