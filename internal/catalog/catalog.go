// Package catalog keeps the relational record of ingested sources: one row
// per document or video, with display metadata and the transcript summary.
//
// The catalog is a read-model for listing a user's library. The vector store
// remains the source of truth for chunk content; catalog writes never gate
// the vector write path.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates no catalog row matches the lookup.
var ErrNotFound = errors.New("source not found")

// Source kinds.
const (
	KindDocument = "document"
	KindVideo    = "video"
	KindNote     = "note"
)

// Source is one catalog row.
type Source struct {
	SourceID   string    `json:"source_id"`
	OwnerID    string    `json:"owner_id"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Config holds configuration for the catalog.
type Config struct {
	// Path is the SQLite database file. Default:
	// ~/.local/share/axond/catalog.db
	Path string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/axond/catalog.db"
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	source_id   TEXT NOT NULL,
	owner_id    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	thumbnail   TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	chunk_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (owner_id, source_id)
);
CREATE INDEX IF NOT EXISTS idx_sources_owner ON sources(owner_id, created_at DESC);
`

// Catalog is a SQLite-backed source catalog.
type Catalog struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the catalog database and applies the schema.
func Open(cfg Config, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	// modernc sqlite is single-writer; one connection sidesteps SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logger.Info("catalog opened", zap.String("path", path))

	return &Catalog{db: db, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Put inserts or replaces the catalog row for a source.
func (c *Catalog) Put(ctx context.Context, src Source) error {
	if src.OwnerID == "" || src.SourceID == "" {
		return fmt.Errorf("owner_id and source_id are required")
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sources (source_id, owner_id, kind, title, thumbnail, summary, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, source_id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			thumbnail = excluded.thumbnail,
			summary = excluded.summary,
			chunk_count = excluded.chunk_count`,
		src.SourceID, src.OwnerID, src.Kind, src.Title, src.Thumbnail, src.Summary, src.ChunkCount, src.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting source: %w", err)
	}

	return nil
}

// Get returns one source row.
func (c *Catalog) Get(ctx context.Context, ownerID, sourceID string) (Source, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT source_id, owner_id, kind, title, thumbnail, summary, chunk_count, created_at
		FROM sources WHERE owner_id = ? AND source_id = ?`,
		ownerID, sourceID,
	)

	var src Source
	err := row.Scan(&src.SourceID, &src.OwnerID, &src.Kind, &src.Title, &src.Thumbnail, &src.Summary, &src.ChunkCount, &src.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, fmt.Errorf("%w: %s/%s", ErrNotFound, ownerID, sourceID)
	}
	if err != nil {
		return Source{}, fmt.Errorf("querying source: %w", err)
	}

	return src, nil
}

// ListByOwner returns all of an owner's sources, newest first.
func (c *Catalog) ListByOwner(ctx context.Context, ownerID string) ([]Source, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT source_id, owner_id, kind, title, thumbnail, summary, chunk_count, created_at
		FROM sources WHERE owner_id = ? ORDER BY created_at DESC, source_id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	sources := []Source{}
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.SourceID, &src.OwnerID, &src.Kind, &src.Title, &src.Thumbnail, &src.Summary, &src.ChunkCount, &src.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}

	return sources, nil
}

// Delete removes one source row. Deleting a missing row is not an error.
func (c *Catalog) Delete(ctx context.Context, ownerID, sourceID string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM sources WHERE owner_id = ? AND source_id = ?`,
		ownerID, sourceID,
	); err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
