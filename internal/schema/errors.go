package schema

import "errors"

// Review errors. Document-level errors are reported per document; only
// configuration errors abort a run.
var (
	// ErrClassificationAmbiguous means no document type cleared the
	// confidence floor. The document is classified Unknown.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")

	// ErrRuleEvaluation means one rule failed on one document and was skipped.
	ErrRuleEvaluation = errors.New("rule evaluation failed")

	// ErrRetrievalUnavailable means the reference index could not be
	// queried. Suggestions degrade to ungrounded.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrMalformedDocument means the document model violates its invariants
	// or could not be parsed. Fatal for that document only.
	ErrMalformedDocument = errors.New("malformed document model")

	// ErrChecklistConfigMissing means no checklist exists for the requested
	// process. Fatal for the run.
	ErrChecklistConfigMissing = errors.New("checklist configuration missing")

	// ErrCorpusMissing means a configured reference corpus could not be
	// loaded. Fatal for the run.
	ErrCorpusMissing = errors.New("reference corpus missing")
)
