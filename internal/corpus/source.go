// Package corpus loads reference regulatory text from disk and splits it
// into passages for the retrieval index.
package corpus

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/dshills/filingcheck/internal/schema"
)

// Source is one reference file after text extraction.
type Source struct {
	Path  string
	Title string
	Hash  string // "sha256:<hex>"
	Text  string
}

var supported = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".html": true, ".htm": true, ".pdf": true}

// Resolve expands glob patterns (doublestar syntax, relative to root unless
// absolute) into a sorted, de-duplicated list of supported files.
func Resolve(root string, patterns []string) ([]string, error) {
	set := make(map[string]bool)
	for _, p := range patterns {
		abs := p
		if !filepath.IsAbs(p) {
			abs = filepath.Join(root, p)
		}
		matches, err := doublestar.FilepathGlob(abs)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if supported[strings.ToLower(filepath.Ext(m))] {
				set[m] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// ReadSource reads one file and extracts its plain text by extension.
func ReadSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("reading reference file: %w", err)
	}
	src := Source{
		Path: path,
		Hash: fmt.Sprintf("sha256:%x", sha256.Sum256(data)),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		src.Title, src.Text, err = htmlText(data)
	case ".pdf":
		src.Text, err = pdfText(data)
	case ".md", ".markdown":
		src.Text = string(data)
		src.Title = markdownTitle(src.Text)
	default:
		src.Text = string(data)
	}
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", path, err)
	}
	if src.Title == "" {
		base := filepath.Base(path)
		src.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return src, nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
)

func htmlText(data []byte) (string, string, error) {
	title := htmlTitle(data)
	cleaned := styleRe.ReplaceAllString(scriptRe.ReplaceAllString(string(data), ""), "")

	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	text, err := conv.ConvertString(cleaned)
	if err != nil {
		return "", "", fmt.Errorf("converting html: %w", err)
	}
	if title == "" {
		title = markdownTitle(text)
	}
	return title, text, nil
}

func htmlTitle(data []byte) string {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(text)
		}
	}
	return sb.String(), nil
}

// LoadSources resolves patterns and reads every matched file. A configured
// corpus that matches nothing, or a file that cannot be read, fails with
// schema.ErrCorpusMissing.
func LoadSources(root string, patterns []string) ([]Source, error) {
	paths, err := Resolve(root, patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrCorpusMissing, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no reference files match %s", schema.ErrCorpusMissing, strings.Join(patterns, ", "))
	}
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		src, err := ReadSource(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", schema.ErrCorpusMissing, err)
		}
		out = append(out, src)
	}
	return out, nil
}
