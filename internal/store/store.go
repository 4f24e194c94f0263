// Package store provides the SQLite-backed document store. It persists
// uploaded documents with their extracted text and the single active
// embedding of each document, so the in-memory vector index can be rebuilt
// after a restart.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/rag"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("store: document not found")

// SQLiteStore implements rag.DocumentSource and rag.EmbeddingArchive on a
// local SQLite database. It is safe for concurrent use.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// now stamps new rows.
	now func() time.Time
}

// DefaultDBPath returns the default path for the document database.
// It resolves to ~/.docqa/docqa.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "docqa.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent writes and keeps
	// one shared database for ":memory:".
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT    PRIMARY KEY,
    owner_id     TEXT    NOT NULL,
    name         TEXT    NOT NULL,
    text         TEXT    NOT NULL,
    uploaded_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_documents_owner_uploaded
    ON documents (owner_id, uploaded_at);

CREATE TABLE IF NOT EXISTS embeddings (
    id           TEXT    PRIMARY KEY,
    document_id  TEXT    NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
    dimension    INTEGER NOT NULL,
    vector       BLOB    NOT NULL, -- little-endian float32
    created_at   INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// CreateDocument persists doc. A zero UploadedAt is stamped with the current time.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc rag.DocumentRef) (rag.DocumentRef, error) {
	if doc.ID == "" || doc.OwnerID == "" {
		return rag.DocumentRef{}, fmt.Errorf("store: create document: id and owner are required")
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = s.now()
	}
	doc.UploadedAt = doc.UploadedAt.Truncate(time.Second)

	const q = `INSERT INTO documents (id, owner_id, name, text, uploaded_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, doc.ID, doc.OwnerID, doc.Name, doc.Text, doc.UploadedAt.Unix()); err != nil {
		return rag.DocumentRef{}, fmt.Errorf("store: create document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns every document owned by ownerID, oldest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, ownerID string) ([]rag.DocumentRef, error) {
	const q = `
SELECT id, owner_id, name, text, uploaded_at
FROM   documents
WHERE  owner_id = ?
ORDER  BY uploaded_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var docs []rag.DocumentRef
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list documents scan: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list documents rows: %w", err)
	}
	return docs, nil
}

// GetDocument returns the document with the given id, or an error wrapping
// ErrNotFound.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (rag.DocumentRef, error) {
	const q = `SELECT id, owner_id, name, text, uploaded_at FROM documents WHERE id = ?`
	d, err := scanDocument(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rag.DocumentRef{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return rag.DocumentRef{}, fmt.Errorf("store: get document: %w", err)
	}
	return d, nil
}

// DocumentIDs returns the id of every stored document.
func (s *SQLiteStore) DocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: document ids scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: document ids rows: %w", err)
	}
	return ids, nil
}

// DeleteDocument removes a document and its embedding in one transaction.
// It returns an error wrapping ErrNotFound when id does not exist.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete document: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete document embedding: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete document: commit: %w", err)
	}
	return nil
}

// SaveEmbedding inserts or replaces the embedding of rec.DocumentID.
func (s *SQLiteStore) SaveEmbedding(ctx context.Context, rec rag.EmbeddingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	const q = `
INSERT INTO embeddings (id, document_id, dimension, vector, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
    id         = excluded.id,
    dimension  = excluded.dimension,
    vector     = excluded.vector,
    created_at = excluded.created_at`

	_, err := s.db.ExecContext(ctx, q, rec.ID, rec.DocumentID, len(rec.Vector), encodeVector(rec.Vector), rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: save embedding: %w", err)
	}
	return nil
}

// DeleteEmbedding removes the embedding of documentID. Absent is not an error.
func (s *SQLiteStore) DeleteEmbedding(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: delete embedding: %w", err)
	}
	return nil
}

// LoadEmbeddings returns every stored embedding.
func (s *SQLiteStore) LoadEmbeddings(ctx context.Context) ([]rag.EmbeddingRecord, error) {
	const q = `SELECT id, document_id, dimension, vector, created_at FROM embeddings ORDER BY document_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: load embeddings: %w", err)
	}
	defer rows.Close()

	var recs []rag.EmbeddingRecord
	for rows.Next() {
		var (
			r    rag.EmbeddingRecord
			dim  int
			blob []byte
			ts   int64
		)
		if err := rows.Scan(&r.ID, &r.DocumentID, &dim, &blob, &ts); err != nil {
			return nil, fmt.Errorf("store: load embeddings scan: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("store: load embeddings: document %s: %w", r.DocumentID, err)
		}
		if len(vec) != dim {
			return nil, fmt.Errorf("store: load embeddings: document %s: stored dimension %d, decoded %d", r.DocumentID, dim, len(vec))
		}
		r.Vector = vec
		r.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load embeddings rows: %w", err)
	}
	return recs, nil
}

// Ping reports whether the database is reachable. Used by the readiness probe.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (rag.DocumentRef, error) {
	var (
		d  rag.DocumentRef
		ts int64
	)
	if err := r.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Text, &ts); err != nil {
		return rag.DocumentRef{}, err
	}
	d.UploadedAt = time.Unix(ts, 0)
	return d, nil
}
