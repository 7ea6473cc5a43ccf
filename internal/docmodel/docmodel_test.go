package docmodel

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filingcheck/internal/schema"
)

const testDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Articles of Association</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t xml:space="preserve">Governed by </w:t></w:r><w:r><w:t>DIFC law.</w:t></w:r></w:p>` +
	`<w:p/>` +
	`<w:p><w:r><w:t>Name</w:t><w:tab/><w:t>Director</w:t></w:r></w:p>` +
	`</w:body></w:document>`

const testContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`

const testRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/></Relationships>`

const testCore = `<?xml version="1.0"?><cp:coreProperties xmlns:cp="x"><dc:title xmlns:dc="y">Articles</dc:title></cp:coreProperties>`

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct{ name, body string }{
		{"[Content_Types].xml", testContentTypes},
		{"word/document.xml", documentXML},
		{"word/_rels/document.xml.rels", testRels},
		{"docProps/core.xml", testCore},
	} {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string)
	for _, f := range zr.File {
		content, err := readZipFile(zr, f.Name)
		require.NoError(t, err)
		out[f.Name] = string(content)
	}
	return out
}

func texts(doc *schema.Document) []string {
	out := make([]string, len(doc.Paragraphs))
	for i, p := range doc.Paragraphs {
		out[i] = p.Text
	}
	return out
}

func TestParseDOCX(t *testing.T) {
	doc, err := Parse("articles.docx", buildDOCX(t, testDocumentXML))
	require.NoError(t, err)

	assert.Equal(t, FormatDOCX, doc.Format)
	assert.Equal(t, []string{"Articles of Association", "Governed by DIFC law.", "", "Name\tDirector"}, texts(doc))
	assert.Equal(t, "Heading1", doc.Paragraphs[0].Style)
	assert.Equal(t, "p2", doc.Paragraphs[1].ID)
	assert.Contains(t, doc.Hash, "sha256:")
}

func TestParseDOCX_NotAZip(t *testing.T) {
	_, err := Parse("broken.docx", []byte("plain text"))
	assert.ErrorIs(t, err, schema.ErrMalformedDocument)
}

func TestParseDOCX_DefaultNamespace(t *testing.T) {
	xmlDoc := `<document xmlns="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><body>` +
		`<p><r><t>Board Resolution</t></r></p></body></document>`
	data := buildDOCX(t, xmlDoc)
	doc, err := Parse("res.docx", data)
	require.NoError(t, err)
	require.Len(t, doc.Paragraphs, 1)

	doc.Annotations = []schema.Annotation{{ParagraphID: "p1", Severity: schema.SeverityLow, RuleID: "missing_date", Message: "No date"}}
	var out bytes.Buffer
	require.NoError(t, Write(&out, doc))

	entries := zipEntries(t, out.Bytes())
	assert.Contains(t, entries["word/document.xml"], `<commentRangeStart id="0"/>`)
	assert.Contains(t, entries["word/comments.xml"], `<comments xmlns="`+wordNS+`">`)
}

func TestWriteDOCX_RoundTrip(t *testing.T) {
	src := buildDOCX(t, testDocumentXML)
	doc, err := Parse("articles.docx", src)
	require.NoError(t, err)

	annotated := doc.Clone()
	annotated.Annotations = []schema.Annotation{
		{ParagraphID: "p2", Start: 12, End: 16, Severity: schema.SeverityHigh, RuleID: "wrong_jurisdiction",
			Message: "References DIFC instead of ADGM", Suggestion: "Refer to ADGM Courts & laws.",
			Citations: []string{"ADGM Companies Regulations 2020, s.6"}},
		{ParagraphID: "p3", Severity: schema.SeverityMedium, RuleID: "placeholder_text", Message: "Empty <paragraph>"},
	}

	var out bytes.Buffer
	require.NoError(t, Write(&out, annotated))

	reread, err := Parse("articles.docx", out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, texts(doc), texts(reread), "comments must not change paragraph text")

	before := zipEntries(t, src)
	after := zipEntries(t, out.Bytes())
	assert.Equal(t, before["docProps/core.xml"], after["docProps/core.xml"])
	assert.Contains(t, after["[Content_Types].xml"], `PartName="/word/comments.xml"`)
	assert.Contains(t, after["word/_rels/document.xml.rels"], `Id="rId2"`)
	assert.Contains(t, after["word/_rels/document.xml.rels"], `Target="comments.xml"`)

	comments := after["word/comments.xml"]
	assert.Contains(t, comments, `w:author="filingcheck"`)
	assert.Contains(t, comments, "[REVIEW NOTE - HIGH] References DIFC instead of ADGM")
	assert.Contains(t, comments, "Citation: ADGM Companies Regulations 2020, s.6")
	assert.Contains(t, comments, "Empty &lt;paragraph&gt;")

	body := after["word/document.xml"]
	assert.Contains(t, body, `<w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Articles of Association</w:t></w:r></w:p>`)
	assert.Contains(t, body, `<w:p><w:commentRangeStart w:id="0"/><w:r>`)
	assert.Contains(t, body, `<w:p><w:commentRangeStart w:id="1"/><w:commentRangeEnd w:id="1"/>`)
}

func TestWriteDOCX_StripRestoresContent(t *testing.T) {
	src := buildDOCX(t, testDocumentXML)
	doc, err := Parse("articles.docx", src)
	require.NoError(t, err)

	stripped := doc.Clone()
	stripped.Annotations = nil
	var out bytes.Buffer
	require.NoError(t, Write(&out, stripped))
	assert.Equal(t, zipEntries(t, src), zipEntries(t, out.Bytes()))
}

func TestWriteDOCX_AppendsToExistingComments(t *testing.T) {
	existing := `<?xml version="1.0"?><w:comments xmlns:w="` + wordNS + `"><w:comment w:id="4" w:author="counsel"><w:p><w:r><w:t>check</w:t></w:r></w:p></w:comment></w:comments>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"word/document.xml": testDocumentXML,
		"word/comments.xml": existing,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, _ = io.WriteString(w, body)
	}
	require.NoError(t, zw.Close())

	doc, err := Parse("a.docx", buf.Bytes())
	require.NoError(t, err)
	doc.Annotations = []schema.Annotation{{ParagraphID: "p1", Severity: schema.SeverityLow, RuleID: "missing_date", Message: "undated"}}

	var out bytes.Buffer
	require.NoError(t, Write(&out, doc))
	entries := zipEntries(t, out.Bytes())
	assert.Contains(t, entries["word/comments.xml"], `w:author="counsel"`)
	assert.Contains(t, entries["word/comments.xml"], `<w:comment w:id="5"`)
	assert.Contains(t, entries["word/_rels/document.xml.rels"], `Id="rId1"`)
}

func TestWriteText_NotesAndStrip(t *testing.T) {
	src := []byte("Board Resolution\r\nThe directors may appoint a secretary.\r\nSigned by the Chair")
	doc, err := Parse("resolution.txt", src)
	require.NoError(t, err)
	require.Len(t, doc.Paragraphs, 3)

	annotated := doc.Clone()
	annotated.Annotations = []schema.Annotation{{
		ParagraphID: "p2", Severity: schema.SeverityMedium, RuleID: "ambiguous_language",
		Message: "Ambiguous term 'may'", Suggestion: "Use 'shall'.", Citations: []string{"ADGM Guidance 1"},
	}}
	var out bytes.Buffer
	require.NoError(t, Write(&out, annotated))
	assert.Equal(t, "Board Resolution\r\nThe directors may appoint a secretary.\r\n"+
		"[REVIEW NOTE - MEDIUM] Ambiguous term 'may'\r\nSuggestion: Use 'shall'.\r\nCitation: ADGM Guidance 1\r\n"+
		"Signed by the Chair", out.String())

	out.Reset()
	require.NoError(t, Write(&out, doc))
	assert.Equal(t, string(src), out.String())
}

func TestParseMarkdown_HeadingStyles(t *testing.T) {
	doc, err := Parse("notes.md", []byte("# Articles\nbody\n##no space"))
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, doc.Format)
	assert.Equal(t, "Heading1", doc.Paragraphs[0].Style)
	assert.Empty(t, doc.Paragraphs[1].Style)
	assert.Empty(t, doc.Paragraphs[2].Style)
}

func TestWrite_RejectsUnknownParagraph(t *testing.T) {
	doc, err := Parse("x.txt", []byte("one"))
	require.NoError(t, err)
	doc.Annotations = []schema.Annotation{{ParagraphID: "p9"}}
	assert.ErrorIs(t, Write(io.Discard, doc), schema.ErrMalformedDocument)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "articles_reviewed.docx", OutputName(&schema.Document{Name: "articles.docx"}))
	assert.Equal(t, "notes_reviewed", OutputName(&schema.Document{Name: "notes"}))
}
