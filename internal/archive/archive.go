// Package archive persists uploaded documents and their translation history
// in SQLite so a restarted server can rebuild its registry.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is recorded in the metadata table by Migrate.
const SchemaVersion = "1"

// Archive is the SQLite data access layer for documents, translations and
// metadata.
type Archive struct {
	db *sql.DB
}

// Open opens a SQLite database at path with WAL mode enabled.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Migrate creates all tables and indexes. Idempotent.
func (a *Archive) Migrate() error {
	if _, err := a.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return a.SetMetadata("schema_version", SchemaVersion)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
  name            TEXT PRIMARY KEY,
  hash            TEXT NOT NULL,
  bytes           BLOB NOT NULL,
  created_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS translations (
  id              INTEGER PRIMARY KEY,
  document        TEXT NOT NULL REFERENCES documents(name) ON DELETE CASCADE,
  functions       INTEGER NOT NULL,
  optimized       INTEGER NOT NULL,
  skipped         INTEGER NOT NULL,
  capped          INTEGER NOT NULL,
  changed         INTEGER NOT NULL,
  iterations      INTEGER NOT NULL,
  duration_ms     INTEGER NOT NULL,
  completed_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_translations_document ON translations(document);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);
`

// Document is an archived upload.
type Document struct {
	Name      string
	Hash      string
	Bytes     []byte
	CreatedAt time.Time
}

// Translation is one archived translation summary.
type Translation struct {
	ID          int64         `json:"id"`
	Document    string        `json:"document"`
	Functions   int           `json:"functions"`
	Optimized   int           `json:"optimized"`
	Skipped     int           `json:"skipped"`
	Capped      int           `json:"capped"`
	Changed     int           `json:"changed"`
	Iterations  int           `json:"iterations"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Hash returns the content digest stored alongside document bytes.
func Hash(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// SaveDocument inserts d or replaces the document with the same name. The
// hash is computed from d.Bytes; a zero CreatedAt is set to now.
func (a *Archive) SaveDocument(d *Document) error {
	d.Hash = Hash(d.Bytes)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.Exec(
		`INSERT INTO documents (name, hash, bytes, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET hash = excluded.hash, bytes = excluded.bytes, created_at = excluded.created_at`,
		d.Name, d.Hash, d.Bytes, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", d.Name, err)
	}
	return nil
}

// Document returns the archived document named name, or nil if there is
// none.
func (a *Archive) Document(name string) (*Document, error) {
	d := &Document{}
	err := a.db.QueryRow(
		"SELECT name, hash, bytes, created_at FROM documents WHERE name = ?", name,
	).Scan(&d.Name, &d.Hash, &d.Bytes, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", name, err)
	}
	return d, nil
}

// Documents returns every archived document ordered by name.
func (a *Archive) Documents() ([]*Document, error) {
	rows, err := a.db.Query("SELECT name, hash, bytes, created_at FROM documents ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		d := &Document{}
		if err := rows.Scan(&d.Name, &d.Hash, &d.Bytes, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// RecordTranslation appends a translation summary and returns its id.
func (a *Archive) RecordTranslation(t *Translation) (int64, error) {
	if t.CompletedAt.IsZero() {
		t.CompletedAt = time.Now().UTC()
	}
	res, err := a.db.Exec(
		`INSERT INTO translations
		   (document, functions, optimized, skipped, capped, changed, iterations, duration_ms, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Document, t.Functions, t.Optimized, t.Skipped, t.Capped, t.Changed, t.Iterations,
		t.Duration.Milliseconds(), t.CompletedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("record translation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	return id, nil
}

// Translations returns the translation history of a document, oldest first.
func (a *Archive) Translations(document string) ([]*Translation, error) {
	rows, err := a.db.Query(
		`SELECT id, document, functions, optimized, skipped, capped, changed, iterations, duration_ms, completed_at
		 FROM translations WHERE document = ? ORDER BY id`, document,
	)
	if err != nil {
		return nil, fmt.Errorf("translations: %w", err)
	}
	defer rows.Close()
	var out []*Translation
	for rows.Next() {
		t := &Translation{}
		var ms int64
		if err := rows.Scan(&t.ID, &t.Document, &t.Functions, &t.Optimized, &t.Skipped,
			&t.Capped, &t.Changed, &t.Iterations, &ms, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		t.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetMetadata returns the value stored under key, or "" if unset.
func (a *Archive) GetMetadata(key string) (string, error) {
	var v string
	err := a.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key.
func (a *Archive) SetMetadata(key, value string) error {
	_, err := a.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
