package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/filingcheck/internal/guard"
	"github.com/dshills/filingcheck/internal/llm"
	"github.com/dshills/filingcheck/internal/redact"
	"github.com/dshills/filingcheck/internal/schema/validate"
)

const defaultTemperature = 0.1

// LLMComposer fills the rule template with a generative model. Every call
// is rate limited, timed out and retried by the guard. Clause text is
// redacted before it leaves the process.
type LLMComposer struct {
	provider    llm.Provider
	model       string
	caller      *guard.Caller
	template    *TemplateComposer
	temperature float64
}

// NewLLMComposer wraps provider. model is the "provider:model" string used
// for reporting.
func NewLLMComposer(provider llm.Provider, model string, caller *guard.Caller) *LLMComposer {
	return &LLMComposer{
		provider:    provider,
		model:       model,
		caller:      caller,
		template:    NewTemplateComposer(),
		temperature: defaultTemperature,
	}
}

// Name implements Composer.
func (c *LLMComposer) Name() string { return "llm:" + c.model }

// Compose implements Composer. Any failure is returned so the engine can
// fall back to the template.
func (c *LLMComposer) Compose(ctx context.Context, req Request) (Draft, error) {
	base, _ := c.template.Compose(ctx, req)

	clause, redactions := redact.Scrub(req.Clause)
	cc := llm.ClauseContext{
		RuleID:      req.Flag.RuleID,
		Severity:    req.Flag.Severity,
		Description: req.Flag.Description,
		Document:    req.Flag.Document,
		Clause:      clause,
		Template:    base.Text,
		Passages:    req.Passages,
	}
	lreq := &llm.Request{
		SystemPrompt: llm.BuildSystemPrompt(req.Grounded()),
		UserPrompt:   llm.BuildUserPrompt(cc),
		Temperature:  c.temperature,
	}

	content, err := c.complete(ctx, req.Flag.RuleID, lreq)
	if err != nil {
		return Draft{}, err
	}
	rem, parseErr := validate.Parse(content, clause)
	if parseErr != nil {
		// One repair attempt. Only a fixed category goes back to the model,
		// never its own output.
		repair := *lreq
		repair.UserPrompt = lreq.UserPrompt + fmt.Sprintf(
			"\n\nYour previous response failed validation (error category: %q). Return only valid JSON matching the schema above.",
			sanitizeErrForPrompt(parseErr),
		)
		content, err = c.complete(ctx, req.Flag.RuleID, &repair)
		if err != nil {
			return Draft{}, err
		}
		if rem, parseErr = validate.Parse(content, clause); parseErr != nil {
			return Draft{}, fmt.Errorf("invalid model answer after retry: %w", parseErr)
		}
	}
	if rem.Compliant {
		base.Note = "model found the clause compliant; confirm manually"
		return base, nil
	}

	text := strings.TrimSpace(strings.Join(nonEmpty(rem.Issue, rem.Suggestion), " "))
	if text == "" {
		return Draft{}, errEmptyDraft
	}
	d := Draft{Text: text, Rewrite: base.Rewrite}
	// A rewrite built from redacted text would put placeholders into the
	// document, so it is only used when nothing was redacted.
	switch {
	case rem.Rewrite == "":
	case len(redactions) == 0:
		d.Rewrite = rem.Rewrite
	default:
		d.Note = fmt.Sprintf("model rewrite not applied: %d identifier(s) were redacted from the clause", total(redactions))
	}
	return d, nil
}

func (c *LLMComposer) complete(ctx context.Context, ruleID string, lreq *llm.Request) (string, error) {
	var content string
	err := c.caller.Do(ctx, "compose "+ruleID, func(ctx context.Context) error {
		resp, err := c.provider.Complete(ctx, lreq)
		if err != nil {
			if !llm.IsRetryable(err) {
				return guard.Permanent(err)
			}
			return err
		}
		content = resp.Content
		return nil
	})
	return content, err
}

// sanitizeErrForPrompt maps a validation error to a fixed category string.
func sanitizeErrForPrompt(err error) string {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "JSON parse failed"):
		return "JSON syntax error"
	case strings.Contains(msg, "suggestion is required"):
		return "missing required field"
	case strings.Contains(msg, "limit is"):
		return "field too long"
	case strings.Contains(msg, "reported compliant"):
		return "rewrite given for a compliant clause"
	default:
		return "schema validation error"
	}
}

func total(counts map[redact.Kind]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func nonEmpty(ss ...string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
