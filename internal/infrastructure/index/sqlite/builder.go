package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
)

const indexSchema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE chunks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id      TEXT NOT NULL,
	filename    TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	page        INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   BLOB NOT NULL
);
CREATE INDEX idx_chunks_doc ON chunks (doc_id, page, chunk_index);
`

// builder accumulates one staged version under <root>/staging/<id> and
// promotes the whole directory into <root>/versions/<id> on Commit. A staged
// version is invisible to serving until Swap activates it.
type builder struct {
	root       string
	versionID  string
	stagingDir string
	db         *sql.DB
}

func newBuilder(ctx context.Context, root, versionID string) (*builder, error) {
	stagingDir := filepath.Join(root, stagingDirName, versionID)
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+filepath.Join(stagingDir, indexFileName))
	if err != nil {
		return nil, fmt.Errorf("open staging index: %w", err)
	}
	if _, err := db.ExecContext(ctx, indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	return &builder{root: root, versionID: versionID, stagingDir: stagingDir, db: db}, nil
}

// PutArtifact stores an auxiliary file (embedder snapshot and the like) next
// to the index file so it travels with the version.
func (b *builder) PutArtifact(name string, data []byte) error {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.WriteFile(filepath.Join(b.stagingDir, name), data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

func (b *builder) AddDocument(ctx context.Context, doc domain.StoredDocument, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("document %s: %d chunks but %d vectors", doc.ID, len(chunks), len(vectors))
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (doc_id, filename, category, page, chunk_index, text, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.DocumentID, doc.Filename, doc.Category, chunk.Page, chunk.ChunkIndex, chunk.Text, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", i, doc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk insert: %w", err)
	}
	return nil
}

// Commit seals the staging database and moves the directory into the
// versions area in one rename. The version is committed but not active.
func (b *builder) Commit(ctx context.Context, docCount int) (domain.IndexVersion, error) {
	builtAt := time.Now().UTC()
	meta := map[string]string{
		"version_id": b.versionID,
		"built_at":   builtAt.Format(time.RFC3339Nano),
		"doc_count":  fmt.Sprintf("%d", docCount),
	}
	for key, value := range meta {
		if _, err := b.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return domain.IndexVersion{}, fmt.Errorf("write meta %s: %w", key, err)
		}
	}
	if err := b.db.Close(); err != nil {
		return domain.IndexVersion{}, fmt.Errorf("close staging index: %w", err)
	}
	b.db = nil

	target := filepath.Join(b.root, versionsDirName, b.versionID)
	if err := os.RemoveAll(target); err != nil {
		return domain.IndexVersion{}, fmt.Errorf("clear version dir: %w", err)
	}
	if err := os.Rename(b.stagingDir, target); err != nil {
		return domain.IndexVersion{}, fmt.Errorf("promote staging dir: %w", err)
	}
	return domain.IndexVersion{VersionID: b.versionID, BuiltAt: builtAt, DocCount: docCount}, nil
}

// Discard abandons the staged version and removes its directory.
func (b *builder) Discard() {
	if b.db != nil {
		b.db.Close()
		b.db = nil
	}
	os.RemoveAll(b.stagingDir)
}

// encodeVector packs float32 components as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
