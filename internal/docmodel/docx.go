package docmodel

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
)

const (
	wordNS       = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	documentPart = "word/document.xml"
)

// rawParagraph is a body paragraph located inside document.xml.
// Offsets are byte positions in the XML.
type rawParagraph struct {
	start       int // '<' of <w:p>
	startTagEnd int // just after the start tag
	pPrEnd      int // just after </w:pPr>, or -1
	end         int // just after </w:p>
	selfClosing bool
	text        string
	style       string
}

func parseDOCX(data []byte) (*schema.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip container: %v", schema.ErrMalformedDocument, err)
	}
	xmlData, err := readZipFile(zr, documentPart)
	if err != nil {
		return nil, err
	}
	paras, err := scanParagraphs(xmlData)
	if err != nil {
		return nil, err
	}

	doc := &schema.Document{Format: FormatDOCX, Paragraphs: make([]schema.Paragraph, 0, len(paras))}
	for i, rp := range paras {
		doc.Paragraphs = append(doc.Paragraphs, schema.Paragraph{
			ID:       paragraphID(i),
			Text:     rp.text,
			Style:    rp.style,
			Position: i,
		})
	}
	return doc, nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: opening %s: %v", schema.ErrMalformedDocument, name, err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", schema.ErrMalformedDocument, name, err)
		}
		return content, nil
	}
	return nil, fmt.Errorf("%w: %s not found", schema.ErrMalformedDocument, name)
}

// scanParagraphs walks document.xml and records every outermost w:p with
// its byte span, text and style. Paragraphs nested in text boxes contribute
// their text to the enclosing paragraph.
func scanParagraphs(data []byte) ([]rawParagraph, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		out     []rawParagraph
		cur     *rawParagraph
		depth   int // element depth inside the current outer paragraph
		inText  bool
		textBuf strings.Builder
	)
	for {
		offset := int(dec.InputOffset())
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", schema.ErrMalformedDocument, documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				if cur != nil {
					depth++
				}
				continue
			}
			if cur == nil {
				if t.Name.Local == "p" {
					after := int(dec.InputOffset())
					cur = &rawParagraph{
						start:       offset,
						startTagEnd: after,
						pPrEnd:      -1,
						selfClosing: bytes.HasSuffix(data[offset:after], []byte("/>")),
					}
					depth = 0
					textBuf.Reset()
				}
				continue
			}
			depth++
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				textBuf.WriteByte('\t')
			case "br", "cr":
				textBuf.WriteByte('\n')
			case "pStyle":
				if depth == 2 && cur.style == "" {
					for _, a := range t.Attr {
						if a.Name.Local == "val" {
							cur.style = a.Value
						}
					}
				}
			}
		case xml.EndElement:
			if cur == nil {
				continue
			}
			if depth == 0 {
				if t.Name.Space == wordNS && t.Name.Local == "p" {
					cur.end = int(dec.InputOffset())
					cur.text = textBuf.String()
					out = append(out, *cur)
					cur = nil
				}
				continue
			}
			if t.Name.Space == wordNS {
				switch t.Name.Local {
				case "t":
					inText = false
				case "pPr":
					if depth == 1 && cur.pPrEnd < 0 {
						cur.pPrEnd = int(dec.InputOffset())
					}
				}
			}
			depth--
		case xml.CharData:
			if cur != nil && inText {
				textBuf.Write(t)
			}
		}
	}
	return out, nil
}

// wordPrefix finds the namespace prefix bound to the WordprocessingML
// namespace in the document root, defaulting to "w". An empty result means
// the namespace is the default one.
func wordPrefix(data []byte) string {
	marker := []byte(`="` + wordNS + `"`)
	idx := bytes.Index(data, marker)
	if idx < 0 {
		return "w"
	}
	head := data[:idx]
	if bytes.HasSuffix(head, []byte("xmlns")) {
		return ""
	}
	colon := bytes.LastIndex(head, []byte("xmlns:"))
	if colon < 0 {
		return "w"
	}
	return string(head[colon+len("xmlns:"):])
}

func qname(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}
