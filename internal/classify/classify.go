// Package classify assigns a DocumentType to a normalized document from
// weighted keyword signals.
package classify

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
)

// DefaultConfidenceFloor is the minimum confidence for a non-Unknown result.
const DefaultConfidenceFloor = 0.15

// filenameBonus is added to the confidence of a type whose filename hint
// matches. It is below the default floor so a filename alone never decides.
const filenameBonus = 0.1

const scoreEpsilon = 1e-9

// Signal is one weighted phrase pattern that indicates a document type.
type Signal struct {
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

// Profile lists the signals of one document type.
type Profile struct {
	Type          schema.DocumentType `yaml:"type"`
	Signals       []Signal            `yaml:"signals"`
	FilenameHints []string            `yaml:"filename_hints"`
}

// Result explains a classification.
type Result struct {
	Confidence float64                         `json:"confidence"`
	Scores     map[schema.DocumentType]float64 `json:"scores"`
	// Err is ErrClassificationAmbiguous when no type cleared the floor.
	Err error `json:"-"`
}

type compiledSignal struct {
	re     *regexp.Regexp
	weight float64
}

type compiledProfile struct {
	typ     schema.DocumentType
	signals []compiledSignal
	total   float64
	hints   []*regexp.Regexp
}

// Classifier scores documents against a fixed set of profiles.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	floor    float64
	profiles []compiledProfile
	logger   *slog.Logger
}

// New builds a classifier over the built-in profiles. A floor <= 0 selects
// DefaultConfidenceFloor.
func New(floor float64, logger *slog.Logger) *Classifier {
	c, err := NewWithProfiles(floor, BuiltinProfiles(), logger)
	if err != nil {
		// Built-in patterns are compiled in tests; failure here is a programming error.
		panic(err)
	}
	return c
}

// NewWithProfiles builds a classifier over custom profiles.
func NewWithProfiles(floor float64, profiles []Profile, logger *slog.Logger) (*Classifier, error) {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	if floor > 1 {
		return nil, fmt.Errorf("confidence floor %.2f must be within (0, 1]", floor)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{floor: floor, logger: logger}
	for _, p := range profiles {
		if p.Type == schema.DocumentTypeUnknown || !p.Type.Valid() {
			return nil, fmt.Errorf("profile has invalid type %v", p.Type)
		}
		cp := compiledProfile{typ: p.Type}
		for _, s := range p.Signals {
			if s.Weight <= 0 {
				return nil, fmt.Errorf("%s: signal %q needs a positive weight", p.Type, s.Pattern)
			}
			re, err := regexp.Compile("(?i)" + s.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%s: compiling signal %q: %w", p.Type, s.Pattern, err)
			}
			cp.signals = append(cp.signals, compiledSignal{re: re, weight: s.Weight})
			cp.total += s.Weight
		}
		for _, h := range p.FilenameHints {
			re, err := regexp.Compile("(?i)" + h)
			if err != nil {
				return nil, fmt.Errorf("%s: compiling filename hint %q: %w", p.Type, h, err)
			}
			cp.hints = append(cp.hints, re)
		}
		if cp.total == 0 {
			return nil, fmt.Errorf("%s: profile has no signals", p.Type)
		}
		c.profiles = append(c.profiles, cp)
	}
	return c, nil
}

// Floor returns the configured confidence floor.
func (c *Classifier) Floor() float64 { return c.floor }

// Classify returns the best-scoring type for doc, or DocumentTypeUnknown
// when no type reaches the confidence floor. It never fails; an ambiguous
// result is reported through Result.Err.
func (c *Classifier) Classify(doc *schema.Document) (schema.DocumentType, Result) {
	res := Result{Scores: make(map[schema.DocumentType]float64, len(c.profiles))}
	if doc == nil {
		res.Err = fmt.Errorf("%w: nil document", schema.ErrClassificationAmbiguous)
		return schema.DocumentTypeUnknown, res
	}

	headings, body := splitHeadings(doc)
	name := normalizeFilename(doc.Name)

	for _, p := range c.profiles {
		var matched float64
		for _, s := range p.signals {
			switch {
			case s.re.MatchString(headings):
				matched += 2 * s.weight
			case s.re.MatchString(body):
				matched += s.weight
			}
		}
		conf := matched / p.total
		for _, h := range p.hints {
			if h.MatchString(name) {
				conf += filenameBonus
				break
			}
		}
		res.Scores[p.typ] = math.Min(1, conf)
	}

	best := schema.DocumentTypeUnknown
	bestScore := 0.0
	for _, t := range priority {
		score, ok := res.Scores[t]
		if !ok {
			continue
		}
		if score > bestScore+scoreEpsilon {
			best, bestScore = t, score
		}
	}
	// Types outside the priority list (custom profiles only) rank last.
	for _, t := range sortedTypes(res.Scores) {
		if inPriority(t) {
			continue
		}
		if score := res.Scores[t]; score > bestScore+scoreEpsilon {
			best, bestScore = t, score
		}
	}

	if best == schema.DocumentTypeUnknown || bestScore < c.floor {
		res.Confidence = bestScore
		res.Err = fmt.Errorf("%w: %s: best score %.2f below floor %.2f",
			schema.ErrClassificationAmbiguous, doc.Name, bestScore, c.floor)
		c.logger.Debug("classification ambiguous", "document", doc.Name, "best", best.String(), "score", bestScore)
		return schema.DocumentTypeUnknown, res
	}
	res.Confidence = bestScore
	c.logger.Debug("classified", "document", doc.Name, "type", best.String(), "confidence", bestScore)
	return best, res
}

// priority breaks score ties, most specific type first.
var priority = []schema.DocumentType{
	schema.DocumentTypeUBODeclaration,
	schema.DocumentTypeChangeOfAddressNotice,
	schema.DocumentTypeRegisterOfDirectors,
	schema.DocumentTypeRegisterOfMembers,
	schema.DocumentTypeShareholderResolution,
	schema.DocumentTypeBoardResolution,
	schema.DocumentTypeRegistrationForm,
	schema.DocumentTypeMemorandumOfAssociation,
	schema.DocumentTypeArticlesOfAssociation,
}

func inPriority(t schema.DocumentType) bool {
	for _, p := range priority {
		if p == t {
			return true
		}
	}
	return false
}

func sortedTypes(m map[schema.DocumentType]float64) []schema.DocumentType {
	out := make([]schema.DocumentType, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// splitHeadings separates heading text (styled headings and the first
// non-empty paragraph, which is usually the title) from body text.
func splitHeadings(doc *schema.Document) (string, string) {
	var heads, body []string
	titleSeen := false
	for _, p := range doc.Paragraphs {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if isHeadingStyle(p.Style) || !titleSeen {
			heads = append(heads, text)
		} else {
			body = append(body, text)
		}
		titleSeen = true
	}
	return strings.Join(heads, "\n"), strings.Join(body, "\n")
}

func isHeadingStyle(style string) bool {
	s := strings.ToLower(style)
	return strings.HasPrefix(s, "heading") || s == "title"
}

func normalizeFilename(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(strings.ToLower(base))
}
