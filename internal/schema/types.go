package schema

import "strings"

// Report is the findings report for one review run. It is the only
// artifact persisted besides the annotated documents.
type Report struct {
	Tool        string           `json:"tool"`
	Version     string           `json:"version"`
	RunID       string           `json:"run_id"`
	Process     string           `json:"process"`
	Documents   []DocumentReport `json:"documents"`
	Checklist   ChecklistResult  `json:"checklist"`
	RedFlags    []RedFlag        `json:"red_flags"`
	Suggestions []Suggestion     `json:"suggestions"`
	Summary     Summary          `json:"summary"`
	Degraded    []string         `json:"degraded"`
	Meta        Meta             `json:"meta"`
}

// DocumentReport describes one document of the bundle.
// Error is set when the document could not be reviewed; the rest of the
// bundle is still reported.
type DocumentReport struct {
	Name        string       `json:"name"`
	Hash        string       `json:"hash"`
	Type        DocumentType `json:"type"`
	Confidence  float64      `json:"confidence"`
	Paragraphs  int          `json:"paragraphs"`
	FlagCount   int          `json:"flag_count"`
	Error       string       `json:"error,omitempty"`
	Diagnostics []string     `json:"diagnostics,omitempty"`
}

// Summary holds the computed verdict and counts.
// Counts always reflect all red flags before any --severity-threshold filtering.
type Summary struct {
	Verdict        Verdict `json:"verdict"`
	Score          int     `json:"score"`
	HighCount      int     `json:"high_count"`
	MediumCount    int     `json:"medium_count"`
	LowCount       int     `json:"low_count"`
	MissingCount   int     `json:"missing_count"`
	ViolationCount int     `json:"violation_count"`
	Grounded       int     `json:"grounded_suggestions"`
	Ungrounded     int     `json:"ungrounded_suggestions"`
}

// Meta holds runtime settings that shaped the report.
type Meta struct {
	Model           string  `json:"model"`
	Embedder        string  `json:"embedder"`
	TopK            int     `json:"top_k"`
	GroundingFloor  float64 `json:"grounding_floor"`
	ConfidenceFloor float64 `json:"confidence_floor"`
}

// Severity levels for red flags and annotations.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityOrdinal orders severities low(0) < medium(1) < high(2).
// Returns -1 for an unrecognised severity.
func SeverityOrdinal(s Severity) int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	default:
		return -1
	}
}

// ParseSeverity accepts low, medium or high in any case.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if SeverityOrdinal(sev) < 0 {
		return "", false
	}
	return sev, true
}

// Verdict is the overall assessment of a submission.
type Verdict string

const (
	VerdictCompliant         Verdict = "COMPLIANT"
	VerdictCompliantWithGaps Verdict = "COMPLIANT_WITH_GAPS"
	VerdictNonCompliant      Verdict = "NON_COMPLIANT"
)

// VerdictOrdinal returns the numeric ordering for a verdict, used by --fail-on
// comparison. COMPLIANT(0) < COMPLIANT_WITH_GAPS(1) < NON_COMPLIANT(2).
// Returns -1 for an unrecognised verdict.
func VerdictOrdinal(v Verdict) int {
	switch v {
	case VerdictCompliant:
		return 0
	case VerdictCompliantWithGaps:
		return 1
	case VerdictNonCompliant:
		return 2
	default:
		return -1
	}
}

// RedFlag is a content defect detected in one document.
// Start and End are byte offsets into the paragraph text; both are zero
// when the flag concerns the paragraph as a whole.
type RedFlag struct {
	RuleID      string   `json:"rule_id"`
	Document    string   `json:"document"`
	ParagraphID string   `json:"paragraph_id"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Match       string   `json:"match,omitempty"`
}

// Key identifies a flag within its document for de-duplication.
func (f RedFlag) Key() string { return f.RuleID + "\x00" + f.ParagraphID }

// ReferencePassage is one chunk of the reference corpus.
type ReferencePassage struct {
	ID        string    `json:"id"`
	Citation  string    `json:"citation"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// ScoredPassage is a passage returned by a retrieval query.
type ScoredPassage struct {
	Passage ReferencePassage `json:"passage"`
	Score   float64          `json:"score"`
	Lexical float64          `json:"lexical"`
}

// Suggestion is a remediation proposal for exactly one red flag.
// Grounded suggestions cite at least one passage at or above the grounding
// floor; ungrounded suggestions carry no passages and no citations.
type Suggestion struct {
	Flag      RedFlag         `json:"flag"`
	Passages  []ScoredPassage `json:"passages"`
	Citations []string        `json:"citations"`
	Grounded  bool            `json:"grounded"`
	TopScore  float64         `json:"top_score"`
	Text      string          `json:"text"`
	Rewrite   string          `json:"rewrite,omitempty"`
	Composer  string          `json:"composer"`
	Note      string          `json:"note,omitempty"`
}

// ChecklistResult is the completeness verdict for a bundle against one
// process checklist.
type ChecklistResult struct {
	Process           string         `json:"process"`
	Title             string         `json:"title"`
	Required          []DocumentType `json:"required"`
	Present           []DocumentType `json:"present"`
	Missing           []DocumentType `json:"missing_documents"`
	Violations        []Violation    `json:"violations"`
	DocumentsUploaded int            `json:"documents_uploaded"`
	RequiredDocuments int            `json:"required_documents"`
}

// Violation is a failed structural checklist rule.
type Violation struct {
	RuleID   string `json:"rule_id"`
	Document string `json:"document"`
	Message  string `json:"message"`
}

// Remediation is the structured answer a generative composer returns for
// one flagged clause. Citations are never taken from it.
type Remediation struct {
	Compliant  bool   `json:"compliant"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
	Rewrite    string `json:"rewrite,omitempty"`
}
