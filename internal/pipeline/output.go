package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/filingcheck/internal/docmodel"
	"github.com/dshills/filingcheck/internal/schema"
)

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// WriteDocuments writes the reviewed copy of every document into dir and
// returns the written paths.
func WriteDocuments(dir string, docs []*schema.Document) ([]string, error) {
	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		var buf bytes.Buffer
		if err := docmodel.Write(&buf, doc); err != nil {
			return paths, fmt.Errorf("rendering %s: %w", doc.Name, err)
		}
		path := filepath.Join(dir, docmodel.OutputName(doc))
		if err := WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
