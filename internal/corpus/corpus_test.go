package corpus

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filingcheck/internal/schema"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestResolve_GlobsAndFilters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "regs", "companies.md"), "# Companies")
	writeFile(t, filepath.Join(root, "regs", "deep", "courts.txt"), "courts")
	writeFile(t, filepath.Join(root, "regs", "image.png"), "png")
	writeFile(t, filepath.Join(root, "other.txt"), "other")

	got, err := Resolve(root, []string{"regs/**/*", "regs/*.md"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "regs", "companies.md"),
		filepath.Join(root, "regs", "deep", "courts.txt"),
	}, got)
}

func TestReadSource_Formats(t *testing.T) {
	root := t.TempDir()
	md := filepath.Join(root, "guide.md")
	writeFile(t, md, "intro\n# ADGM Companies Regulations 2020\nPart 1")
	src, err := ReadSource(md)
	require.NoError(t, err)
	assert.Equal(t, "ADGM Companies Regulations 2020", src.Title)
	assert.True(t, strings.HasPrefix(src.Hash, "sha256:"))

	page := filepath.Join(root, "courts.html")
	writeFile(t, page, `<html><head><title>ADGM Courts</title><style>p{}</style></head>`+
		`<body><h1>Jurisdiction</h1><p>The ADGM Courts have exclusive jurisdiction.</p><script>track()</script></body></html>`)
	src, err = ReadSource(page)
	require.NoError(t, err)
	assert.Equal(t, "ADGM Courts", src.Title)
	assert.Contains(t, src.Text, "exclusive jurisdiction")
	assert.NotContains(t, src.Text, "track()")

	txt := filepath.Join(root, "employment_regs.txt")
	writeFile(t, txt, "Employment Regulations")
	src, err = ReadSource(txt)
	require.NoError(t, err)
	assert.Equal(t, "employment_regs", src.Title)

	bad := filepath.Join(root, "broken.pdf")
	writeFile(t, bad, "not a pdf")
	_, err = ReadSource(bad)
	assert.Error(t, err)
}

func TestChunker_WindowsAndOverlap(t *testing.T) {
	c := NewChunker(WithChunkSize(10), WithOverlap(2))
	src := Source{Title: "Reg", Hash: "sha256:x", Text: "abcdefghij klmnopqrst  uvw"}
	ps := c.Chunk(src)

	require.Len(t, ps, 3)
	assert.Equal(t, "abcdefghij", ps[0].Text)
	assert.Equal(t, "ij klmnopq", ps[1].Text)
	assert.Equal(t, "pqrst uvw", ps[2].Text)
	assert.Equal(t, "Reg, part 2", ps[1].Citation)

	again := c.Chunk(src)
	assert.Equal(t, ps[0].ID, again[0].ID, "ids are stable across rebuilds")
	assert.NotEqual(t, ps[0].ID, ps[1].ID)
}

func TestChunker_SingleWindowKeepsTitle(t *testing.T) {
	ps := NewChunker().Chunk(Source{Title: "Short Rule", Hash: "h", Text: "  one line  "})
	require.Len(t, ps, 1)
	assert.Equal(t, "Short Rule", ps[0].Citation)
	assert.Equal(t, "one line", ps[0].Text)
	assert.Empty(t, NewChunker().Chunk(Source{Text: " \n "}))
}

func TestNewChunker_ClampsOverlap(t *testing.T) {
	c := NewChunker(WithChunkSize(8), WithOverlap(8))
	assert.Equal(t, 2, c.overlap)
}

func TestLoad_MissingCorpus(t *testing.T) {
	_, _, err := Load(t.TempDir(), []string{"*.md"}, nil)
	assert.ErrorIs(t, err, schema.ErrCorpusMissing)
}

func TestLoad_DeduplicatesIdenticalFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "Same regulation text.")
	writeFile(t, filepath.Join(root, "b.txt"), "Same regulation text.")
	writeFile(t, filepath.Join(root, "c.txt"), "Different text.")

	ps, sources, err := Load(root, []string{"*.txt"}, nil)
	require.NoError(t, err)
	assert.Len(t, sources, 3)
	assert.Len(t, ps, 2)
}

func TestWatch_CallsOnChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "regs", "a.md"), "# A")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, []string{"regs/**/*.md"}, 20*time.Millisecond,
			slog.New(slog.NewTextHandler(io.Discard, nil)), func() { changed <- struct{}{} })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "regs", "b.md"), "# B")
	writeFile(t, filepath.Join(root, "regs", "ignored.png"), "png")

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("onChange was not called")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestWatch_NoDirectories(t *testing.T) {
	err := Watch(context.Background(), t.TempDir(), []string{"missing/*.md"}, 0, nil, func() {})
	assert.Error(t, err)
}
