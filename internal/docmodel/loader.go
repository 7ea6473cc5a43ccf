// Package docmodel converts submitted files into the normalized document
// model and writes annotated copies back out.
package docmodel

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
)

// Formats understood by the adapter.
const (
	FormatDOCX     = "docx"
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Load reads a file from disk and parses it according to its extension.
func Load(path string) (*schema.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	doc, err := Parse(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Parse builds a document from raw bytes. The format is chosen from the
// file name extension; unknown extensions are treated as plain text.
func Parse(name string, data []byte) (*schema.Document, error) {
	var (
		doc *schema.Document
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx":
		doc, err = parseDOCX(data)
	case ".md", ".markdown":
		doc = parseText(data, FormatMarkdown)
	default:
		doc = parseText(data, FormatText)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	doc.Name = name
	doc.Hash = fmt.Sprintf("sha256:%x", sha256.Sum256(data))
	doc.Source = data
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write serialises doc in its original format with its annotations.
// A document without annotations is written back unchanged.
func Write(w io.Writer, doc *schema.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	switch doc.Format {
	case FormatDOCX:
		return writeDOCX(w, doc)
	case FormatText, FormatMarkdown:
		return writeText(w, doc)
	default:
		return fmt.Errorf("%w: %s: unsupported format %q", schema.ErrMalformedDocument, doc.Name, doc.Format)
	}
}

// OutputName returns the file name for the reviewed copy of doc,
// e.g. "articles.docx" -> "articles_reviewed.docx".
func OutputName(doc *schema.Document) string {
	ext := filepath.Ext(doc.Name)
	return strings.TrimSuffix(doc.Name, ext) + "_reviewed" + ext
}

func paragraphID(i int) string { return fmt.Sprintf("p%d", i+1) }
