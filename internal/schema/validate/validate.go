package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dshills/filingcheck/internal/schema"
)

const (
	maxSuggestionRunes = 1200
	maxRewriteRunes    = 4000
)

// Parse strips markdown fences, unmarshals JSON, and validates a generative
// composer's remediation answer. clause is the flagged paragraph text; a
// rewrite identical to it is dropped.
func Parse(raw string, clause string) (*schema.Remediation, error) {
	cleaned := stripFences(raw)

	var r schema.Remediation
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return nil, fmt.Errorf("JSON parse failed: %w", err)
	}

	r.Issue = strings.TrimSpace(r.Issue)
	r.Suggestion = strings.TrimSpace(r.Suggestion)
	r.Rewrite = strings.TrimSpace(r.Rewrite)

	if err := validateRemediation(&r); err != nil {
		return nil, err
	}
	if r.Rewrite == strings.TrimSpace(clause) {
		r.Rewrite = ""
	}
	return &r, nil
}

// stripFences removes leading/trailing markdown code fences (```json ... ``` or ``` ... ```).
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Remove first line (the fence opener)
		idx := strings.Index(s, "\n")
		if idx >= 0 {
			s = s[idx+1:]
		}
	}
	if strings.HasSuffix(s, "```") {
		idx := strings.LastIndex(s, "\n```")
		if idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func validateRemediation(r *schema.Remediation) error {
	if r.Compliant {
		if r.Rewrite != "" {
			return fmt.Errorf("rewrite given for a clause reported compliant")
		}
		return nil
	}
	if r.Suggestion == "" {
		return fmt.Errorf("suggestion is required when the clause is not compliant")
	}
	if n := utf8.RuneCountInString(r.Suggestion); n > maxSuggestionRunes {
		return fmt.Errorf("suggestion is %d characters, limit is %d", n, maxSuggestionRunes)
	}
	if n := utf8.RuneCountInString(r.Rewrite); n > maxRewriteRunes {
		return fmt.Errorf("rewrite is %d characters, limit is %d", n, maxRewriteRunes)
	}
	return nil
}
