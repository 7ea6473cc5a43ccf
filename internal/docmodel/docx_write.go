package docmodel

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/dshills/filingcheck/internal/schema"
)

const (
	commentsPart     = "word/comments.xml"
	contentTypesPart = "[Content_Types].xml"
	documentRelsPart = "word/_rels/document.xml.rels"

	commentsContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.comments+xml"
	commentsRelType     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/comments"

	// CommentAuthor is recorded on every comment the reviewer adds.
	CommentAuthor = "filingcheck"
)

var (
	commentIDPattern = regexp.MustCompile(`:id="(\d+)"`)
	relIDPattern     = regexp.MustCompile(`Id="rId(\d+)"`)
)

// writeDOCX re-serialises the original package with one Word comment per
// annotation. Parts other than document.xml, comments.xml, the content
// types and the document relationships are copied without recompression.
func writeDOCX(w io.Writer, doc *schema.Document) error {
	zr, err := zip.NewReader(bytes.NewReader(doc.Source), int64(len(doc.Source)))
	if err != nil {
		return fmt.Errorf("%w: not a zip container: %v", schema.ErrMalformedDocument, err)
	}

	zw := zip.NewWriter(w)
	if len(doc.Annotations) == 0 {
		for _, f := range zr.File {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copying %s: %w", f.Name, err)
			}
		}
		return zw.Close()
	}

	docXML, err := readZipFile(zr, documentPart)
	if err != nil {
		return err
	}
	var existingComments []byte
	if hasZipFile(zr, commentsPart) {
		if existingComments, err = readZipFile(zr, commentsPart); err != nil {
			return err
		}
	}

	prefix := wordPrefix(docXML)
	nextID := maxCommentID(existingComments) + 1
	newDocXML, comments, err := insertCommentMarkers(docXML, doc, prefix, nextID)
	if err != nil {
		return err
	}
	commentsXML := buildComments(existingComments, comments, prefix)

	replaced := map[string][]byte{
		documentPart: newDocXML,
		commentsPart: commentsXML,
	}
	for _, f := range zr.File {
		switch f.Name {
		case documentPart, commentsPart:
			continue
		case contentTypesPart:
			data, err := readZipFile(zr, f.Name)
			if err != nil {
				return err
			}
			replaced[f.Name] = ensureCommentsContentType(data)
		case documentRelsPart:
			data, err := readZipFile(zr, f.Name)
			if err != nil {
				return err
			}
			replaced[f.Name] = ensureCommentsRelationship(data)
		}
	}
	if _, ok := replaced[documentRelsPart]; !ok {
		replaced[documentRelsPart] = ensureCommentsRelationship([]byte(emptyRelationships))
	}

	written := make(map[string]bool)
	for _, f := range zr.File {
		data, ok := replaced[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copying %s: %w", f.Name, err)
			}
			continue
		}
		if err := writeZipEntry(zw, f.Name, data, f.Method); err != nil {
			return err
		}
		written[f.Name] = true
	}
	for _, name := range []string{commentsPart, documentRelsPart} {
		if !written[name] {
			if err := writeZipEntry(zw, name, replaced[name], zip.Deflate); err != nil {
				return err
			}
		}
	}
	return zw.Close()
}

const emptyRelationships = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

func hasZipFile(zr *zip.Reader, name string) bool {
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

func writeZipEntry(zw *zip.Writer, name string, data []byte, method uint16) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

type comment struct {
	id    int
	lines []string
}

// insertCommentMarkers anchors every annotation on its paragraph with a
// commentRangeStart after the paragraph properties and a commentRangeEnd
// plus commentReference run before the closing tag.
func insertCommentMarkers(data []byte, doc *schema.Document, prefix string, firstID int) ([]byte, []comment, error) {
	paras, err := scanParagraphs(data)
	if err != nil {
		return nil, nil, err
	}
	if len(paras) != len(doc.Paragraphs) {
		return nil, nil, fmt.Errorf("%w: %s has %d paragraphs, model has %d",
			schema.ErrMalformedDocument, documentPart, len(paras), len(doc.Paragraphs))
	}

	byPara := groupAnnotations(doc)
	var (
		out      bytes.Buffer
		comments []comment
		last     int
		nextID   = firstID
	)
	for i, rp := range paras {
		anns := byPara[doc.Paragraphs[i].ID]
		if len(anns) == 0 {
			continue
		}

		ids := make([]int, len(anns))
		for j, a := range anns {
			ids[j] = nextID
			comments = append(comments, comment{id: nextID, lines: noteLines(a)})
			nextID++
		}

		var starts, ends strings.Builder
		for _, id := range ids {
			fmt.Fprintf(&starts, `<%s %s="%d"/>`, qname(prefix, "commentRangeStart"), qname(prefix, "id"), id)
		}
		for _, id := range ids {
			fmt.Fprintf(&ends, `<%s %s="%d"/>`, qname(prefix, "commentRangeEnd"), qname(prefix, "id"), id)
			fmt.Fprintf(&ends, `<%s><%s %s="%d"/></%s>`,
				qname(prefix, "r"), qname(prefix, "commentReference"), qname(prefix, "id"), id, qname(prefix, "r"))
		}

		out.Write(data[last:rp.start])
		if rp.selfClosing {
			open := bytes.TrimRight(bytes.TrimSuffix(data[rp.start:rp.startTagEnd], []byte("/>")), " \t\r\n")
			out.Write(open)
			out.WriteString(">")
			out.WriteString(starts.String())
			out.WriteString(ends.String())
			fmt.Fprintf(&out, "</%s>", qname(prefix, "p"))
		} else {
			insertAt := rp.startTagEnd
			if rp.pPrEnd > 0 {
				insertAt = rp.pPrEnd
			}
			closeAt := bytes.LastIndex(data[rp.start:rp.end], []byte("</")) + rp.start
			out.Write(data[rp.start:insertAt])
			out.WriteString(starts.String())
			out.Write(data[insertAt:closeAt])
			out.WriteString(ends.String())
			out.Write(data[closeAt:rp.end])
		}
		last = rp.end
	}
	out.Write(data[last:])
	return out.Bytes(), comments, nil
}

func maxCommentID(data []byte) int {
	maxID := -1
	for _, m := range commentIDPattern.FindAllSubmatch(data, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n > maxID {
			maxID = n
		}
	}
	return maxID
}

func buildComments(existing []byte, comments []comment, prefix string) []byte {
	var body strings.Builder
	for _, c := range comments {
		fmt.Fprintf(&body, `<%s %s="%d" %s="%s" %s="FC">`,
			qname(prefix, "comment"), qname(prefix, "id"), c.id,
			qname(prefix, "author"), CommentAuthor, qname(prefix, "initials"))
		for _, line := range c.lines {
			fmt.Fprintf(&body, `<%s><%s><%s xml:space="preserve">%s</%s></%s></%s>`,
				qname(prefix, "p"), qname(prefix, "r"), qname(prefix, "t"),
				escapeXML(line),
				qname(prefix, "t"), qname(prefix, "r"), qname(prefix, "p"))
		}
		fmt.Fprintf(&body, "</%s>", qname(prefix, "comment"))
	}

	closing := []byte("</" + qname(prefix, "comments") + ">")
	if idx := bytes.LastIndex(existing, closing); idx >= 0 {
		var out bytes.Buffer
		out.Write(existing[:idx])
		out.WriteString(body.String())
		out.Write(existing[idx:])
		return out.Bytes()
	}

	xmlns := "xmlns"
	if prefix != "" {
		xmlns += ":" + prefix
	}
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+"\n"+`<%s %s="%s">%s</%s>`,
		qname(prefix, "comments"), xmlns, wordNS, body.String(), qname(prefix, "comments")))
}

func ensureCommentsContentType(data []byte) []byte {
	if bytes.Contains(data, []byte(`PartName="/`+commentsPart+`"`)) {
		return data
	}
	override := fmt.Sprintf(`<Override PartName="/%s" ContentType="%s"/>`, commentsPart, commentsContentType)
	return insertBefore(data, "</Types>", override)
}

func ensureCommentsRelationship(data []byte) []byte {
	if bytes.Contains(data, []byte(`Target="comments.xml"`)) {
		return data
	}
	maxID := 0
	for _, m := range relIDPattern.FindAllSubmatch(data, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n > maxID {
			maxID = n
		}
	}
	rel := fmt.Sprintf(`<Relationship Id="rId%d" Type="%s" Target="comments.xml"/>`, maxID+1, commentsRelType)
	return insertBefore(data, "</Relationships>", rel)
}

func insertBefore(data []byte, marker, insert string) []byte {
	idx := bytes.LastIndex(data, []byte(marker))
	if idx < 0 {
		return data
	}
	var out bytes.Buffer
	out.Write(data[:idx])
	out.WriteString(insert)
	out.Write(data[idx:])
	return out.Bytes()
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
