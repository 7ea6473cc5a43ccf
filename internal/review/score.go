package review

import "github.com/dshills/filingcheck/internal/schema"

// Score penalties.
const (
	penaltyHigh      = 20
	penaltyMedium    = 7
	penaltyLow       = 2
	penaltyMissing   = 15
	penaltyViolation = 10
)

// Score computes the deterministic score from all red flags and the
// checklist result. Score is always computed before any
// --severity-threshold filtering.
// Start: 100, -20 per high, -7 per medium, -2 per low flag, -15 per missing
// document, -10 per structural violation, clamped at 0.
func Score(flags []schema.RedFlag, cl schema.ChecklistResult) int {
	score := 100
	for _, f := range flags {
		switch f.Severity {
		case schema.SeverityHigh:
			score -= penaltyHigh
		case schema.SeverityMedium:
			score -= penaltyMedium
		case schema.SeverityLow:
			score -= penaltyLow
		}
	}
	score -= penaltyMissing * len(cl.Missing)
	score -= penaltyViolation * len(cl.Violations)
	if score < 0 {
		score = 0
	}
	return score
}

// Verdict computes the deterministic verdict. A missing required document
// or any high-severity flag makes the submission NON_COMPLIANT; any other
// finding leaves it COMPLIANT_WITH_GAPS.
// Verdict is always computed before any --severity-threshold filtering.
func Verdict(flags []schema.RedFlag, cl schema.ChecklistResult) schema.Verdict {
	if len(cl.Missing) > 0 {
		return schema.VerdictNonCompliant
	}
	for _, f := range flags {
		if f.Severity == schema.SeverityHigh {
			return schema.VerdictNonCompliant
		}
	}
	if len(flags) > 0 || len(cl.Violations) > 0 {
		return schema.VerdictCompliantWithGaps
	}
	return schema.VerdictCompliant
}

// Counts returns the pre-filter high, medium, and low counts from all flags.
func Counts(flags []schema.RedFlag) (high, medium, low int) {
	for _, f := range flags {
		switch f.Severity {
		case schema.SeverityHigh:
			high++
		case schema.SeverityMedium:
			medium++
		case schema.SeverityLow:
			low++
		}
	}
	return
}

// Summarize fills the report summary from its unfiltered findings.
func Summarize(r *schema.Report) {
	high, medium, low := Counts(r.RedFlags)
	s := schema.Summary{
		Verdict:        Verdict(r.RedFlags, r.Checklist),
		Score:          Score(r.RedFlags, r.Checklist),
		HighCount:      high,
		MediumCount:    medium,
		LowCount:       low,
		MissingCount:   len(r.Checklist.Missing),
		ViolationCount: len(r.Checklist.Violations),
	}
	for _, sg := range r.Suggestions {
		if sg.Grounded {
			s.Grounded++
		} else {
			s.Ungrounded++
		}
	}
	r.Summary = s
}

// FilterBySeverity returns only flags at or above the given threshold severity.
func FilterBySeverity(flags []schema.RedFlag, threshold schema.Severity) []schema.RedFlag {
	if threshold == schema.SeverityLow {
		return flags
	}
	out := make([]schema.RedFlag, 0, len(flags))
	for _, f := range flags {
		if meetsSeverity(f.Severity, threshold) {
			out = append(out, f)
		}
	}
	return out
}

// FilterSuggestions keeps suggestions whose flag meets the threshold.
func FilterSuggestions(suggestions []schema.Suggestion, threshold schema.Severity) []schema.Suggestion {
	if threshold == schema.SeverityLow {
		return suggestions
	}
	out := make([]schema.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if meetsSeverity(s.Flag.Severity, threshold) {
			out = append(out, s)
		}
	}
	return out
}

func meetsSeverity(s, threshold schema.Severity) bool {
	return schema.SeverityOrdinal(s) >= schema.SeverityOrdinal(threshold)
}
