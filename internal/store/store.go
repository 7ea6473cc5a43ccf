// Package store persists a built reference index (passages and their
// embeddings) in a SQLite database so later runs skip re-embedding.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dshills/filingcheck/internal/schema"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SourceRecord identifies one reference file that fed the index.
type SourceRecord struct {
	Path  string
	Hash  string
	Title string
}

// Meta describes a stored index.
type Meta struct {
	Model      string
	Dimensions int
	BuiltAt    time.Time
	Passages   int
	Sources    []SourceRecord
}

// Store is a SQLite-backed index database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	for _, name := range ups {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Save replaces the stored index with the given passages in one transaction.
// Every passage must carry an embedding.
func (s *Store) Save(ctx context.Context, model string, dims int, sources []SourceRecord, passages []schema.ReferencePassage) (err error) {
	for _, p := range passages {
		if len(p.Embedding) == 0 {
			return fmt.Errorf("passage %s has no embedding", p.ID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"passages", "sources", "index_meta"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	meta := map[string]string{
		"model":      model,
		"dimensions": strconv.Itoa(dims),
		"built_at":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err = tx.ExecContext(ctx, "INSERT INTO index_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("saving index metadata: %w", err)
		}
	}
	for _, src := range sources {
		if _, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO sources (path, hash, title) VALUES (?, ?, ?)",
			src.Path, src.Hash, src.Title); err != nil {
			return fmt.Errorf("saving source %s: %w", src.Path, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO passages (id, position, citation, content, embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing passage insert: %w", err)
	}
	defer stmt.Close()
	for i, p := range passages {
		if _, err = stmt.ExecContext(ctx, p.ID, i, p.Citation, p.Text, float32SliceToBytes(p.Embedding)); err != nil {
			return fmt.Errorf("saving passage %s: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	return nil
}

// Load returns the stored index. An empty database fails with
// schema.ErrCorpusMissing.
func (s *Store) Load(ctx context.Context) (Meta, []schema.ReferencePassage, error) {
	meta, err := s.meta(ctx)
	if err != nil {
		return Meta{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, citation, content, embedding FROM passages ORDER BY position")
	if err != nil {
		return Meta{}, nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var passages []schema.ReferencePassage
	for rows.Next() {
		var (
			p    schema.ReferencePassage
			blob []byte
		)
		if err := rows.Scan(&p.ID, &p.Citation, &p.Text, &blob); err != nil {
			return Meta{}, nil, fmt.Errorf("scanning passage: %w", err)
		}
		p.Embedding = bytesToFloat32Slice(blob)
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return Meta{}, nil, fmt.Errorf("iterating passages: %w", err)
	}
	if len(passages) == 0 {
		return Meta{}, nil, fmt.Errorf("%w: index database %s is empty", schema.ErrCorpusMissing, s.path)
	}
	meta.Passages = len(passages)
	return meta, passages, nil
}

func (s *Store) meta(ctx context.Context) (Meta, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM index_meta")
	if err != nil {
		return Meta{}, fmt.Errorf("querying index metadata: %w", err)
	}
	defer rows.Close()

	var m Meta
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, fmt.Errorf("scanning index metadata: %w", err)
		}
		switch k {
		case "model":
			m.Model = v
		case "dimensions":
			m.Dimensions, _ = strconv.Atoi(v)
		case "built_at":
			m.BuiltAt, _ = time.Parse(time.RFC3339, v)
		}
	}
	if err := rows.Err(); err != nil {
		return Meta{}, fmt.Errorf("iterating index metadata: %w", err)
	}

	srcRows, err := s.db.QueryContext(ctx, "SELECT path, hash, title FROM sources ORDER BY path")
	if err != nil {
		return Meta{}, fmt.Errorf("querying sources: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var r SourceRecord
		if err := srcRows.Scan(&r.Path, &r.Hash, &r.Title); err != nil {
			return Meta{}, fmt.Errorf("scanning source: %w", err)
		}
		m.Sources = append(m.Sources, r)
	}
	return m, srcRows.Err()
}

// Fresh reports whether the stored index was built with model from exactly
// the given sources, so it can be reused without re-embedding.
func (s *Store) Fresh(ctx context.Context, model string, sources []SourceRecord) (bool, error) {
	m, err := s.meta(ctx)
	if err != nil {
		return false, err
	}
	if m.Model != model || len(m.Sources) != len(sources) {
		return false, nil
	}
	want := make(map[string]string, len(sources))
	for _, r := range sources {
		want[r.Path] = r.Hash
	}
	for _, r := range m.Sources {
		if h, ok := want[r.Path]; !ok || h != r.Hash {
			return false, nil
		}
	}
	return true, nil
}

// ErrNotFound is returned by OpenExisting when no database file exists.
var ErrNotFound = errors.New("index database not found")

// OpenExisting opens the database only if the file already exists.
func OpenExisting(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("checking index database: %w", err)
	}
	return Open(path)
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
