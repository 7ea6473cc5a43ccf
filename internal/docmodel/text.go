package docmodel

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
)

// parseText treats every line as a paragraph so that re-serialising an
// unannotated document reproduces the input exactly.
func parseText(data []byte, format string) *schema.Document {
	raw := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(raw, "\n")

	doc := &schema.Document{Format: format, Paragraphs: make([]schema.Paragraph, 0, len(lines))}
	for i, line := range lines {
		doc.Paragraphs = append(doc.Paragraphs, schema.Paragraph{
			ID:       paragraphID(i),
			Text:     line,
			Style:    textStyle(line, format),
			Position: i,
		})
	}
	return doc
}

func textStyle(line, format string) string {
	if format != FormatMarkdown {
		return ""
	}
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level > 0 && level <= 6 && len(trimmed) > level && trimmed[level] == ' ' {
		return fmt.Sprintf("Heading%d", level)
	}
	return ""
}

// writeText renders doc line by line, inserting review notes after every
// annotated paragraph. Without annotations the output equals the input.
func writeText(w io.Writer, doc *schema.Document) error {
	eol := "\n"
	if bytes.Contains(doc.Source, []byte("\r\n")) {
		eol = "\r\n"
	}

	byPara := groupAnnotations(doc)
	var sb strings.Builder
	for i, p := range doc.Paragraphs {
		if i > 0 {
			sb.WriteString(eol)
		}
		sb.WriteString(p.Text)
		for _, a := range byPara[p.ID] {
			for _, line := range noteLines(a) {
				sb.WriteString(eol)
				sb.WriteString(line)
			}
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// noteLines formats one annotation as reviewer note lines.
func noteLines(a schema.Annotation) []string {
	lines := []string{fmt.Sprintf("[REVIEW NOTE - %s] %s", strings.ToUpper(string(a.Severity)), a.Message)}
	if a.Suggestion != "" {
		lines = append(lines, "Suggestion: "+a.Suggestion)
	}
	for _, c := range a.Citations {
		lines = append(lines, "Citation: "+c)
	}
	return lines
}

func groupAnnotations(doc *schema.Document) map[string][]schema.Annotation {
	out := make(map[string][]schema.Annotation)
	for _, a := range doc.Annotations {
		out[a.ParagraphID] = append(out[a.ParagraphID], a)
	}
	return out
}
