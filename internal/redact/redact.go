// Package redact scrubs secrets and personal identifiers from clause text
// before it is sent to an external model.
package redact

import (
	"regexp"
	"strings"
)

// Kind names a class of redacted value. It appears in the placeholder, so
// the model still sees that a value of that kind stood there.
type Kind string

const (
	KindSecret     Kind = "secret"
	KindEmiratesID Kind = "emirates_id"
	KindIBAN       Kind = "iban"
	KindPassport   Kind = "passport"
	KindEmail      Kind = "email"
	KindPhone      Kind = "phone"
)

// Placeholder is the replacement text for a value of kind k.
func Placeholder(k Kind) string { return "[REDACTED:" + string(k) + "]" }

type pattern struct {
	kind Kind
	re   *regexp.Regexp
}

// pemPattern spans lines; it is handled separately so the line count holds.
var pemPattern = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+KEY-----.*?-----END [A-Z ]+KEY-----`)

// patterns run in order. Secrets come first because a bearer token can
// contain digit runs the identifier patterns would split.
var patterns = []pattern{
	{KindSecret, regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{KindSecret, regexp.MustCompile(`\bsk-[a-zA-Z0-9]{20,}`)},
	{KindSecret, regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
	{KindSecret, regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]{20,}=*`)},
	{KindSecret, regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`)},

	// 784-YYYY-NNNNNNN-C, separators optional
	{KindEmiratesID, regexp.MustCompile(`\b784[- ]?\d{4}[- ]?\d{7}[- ]?\d\b`)},
	{KindIBAN, regexp.MustCompile(`\bAE\d{2}\s?(?:\d{4}\s?){4}\d{3}\b`)},
	// only when labelled; bare 8-character tokens are too common in filings
	{KindPassport, regexp.MustCompile(`(?i)passport\s+(?:no\.?|number|#)?\s*[:=]?\s*[A-Z0-9]{6,9}\b`)},
	{KindEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{KindPhone, regexp.MustCompile(`\+\d{1,3}[\s\-]?\(?\d{1,4}\)?(?:[\s\-]?\d{2,4}){2,4}`)},
}

// Scrub replaces every secret and personal identifier in input with its
// placeholder and counts the replacements per kind. The number of newlines
// in the output always equals the number in the input.
func Scrub(input string) (string, map[Kind]int) {
	counts := map[Kind]int{}
	input = pemPattern.ReplaceAllStringFunc(input, func(match string) string {
		counts[KindSecret]++
		lines := strings.Split(match, "\n")
		for i := range lines {
			lines[i] = Placeholder(KindSecret)
		}
		return strings.Join(lines, "\n")
	})
	for _, p := range patterns {
		input = p.re.ReplaceAllStringFunc(input, func(string) string {
			counts[p.kind]++
			return Placeholder(p.kind)
		})
	}
	return input, counts
}

// Redact is Scrub without the counts.
func Redact(input string) string {
	out, _ := Scrub(input)
	return out
}
