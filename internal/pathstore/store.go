// Package pathstore persists learned executable paths in a local SQLite
// database. It backs process.Registry.
package pathstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS known_paths (
	name        TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// Entry is one stored name/path pair.
type Entry struct {
	Name      string
	Path      string
	UpdatedAt time.Time
}

// Store is a SQLite-backed name-to-path table. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema is at
// the current version.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path database location required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open path db: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open path db: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY between
	// the poller's path learning and CLI-driven launches.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 3000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	ver, err := currentSchemaVersion(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	}
	if ver < schemaVersion {
		if err := migrateSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		slog.Debug("[DEBUG-PATHSTORE] schema migrated", "from", ver, "to", schemaVersion)
	}

	return &Store{db: db, now: time.Now}, nil
}

// currentSchemaVersion returns the schema version from schema_meta,
// or 0 if the table doesn't exist.
func currentSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_meta'
	`).Scan(&count)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	var ver int
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_meta LIMIT 1").Scan(&ver)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return ver, err
}

func migrateSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("create v1 schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_meta"); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_meta (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("insert schema version: %w", err)
	}
	return tx.Commit()
}

// LoadPaths returns every stored path keyed by name.
func (s *Store) LoadPaths(ctx context.Context) (map[string]string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(entries))
	for _, e := range entries {
		paths[e.Name] = e.Path
	}
	return paths, nil
}

// SavePath inserts or replaces the path stored for name.
func (s *Store) SavePath(ctx context.Context, name, path string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(path) == "" {
		return errors.New("save path: name and path are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO known_paths (name, path, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET path = excluded.path, updated_at = excluded.updated_at
	`, name, path, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save path %q: %w", name, err)
	}
	return nil
}

// Delete removes name. Deleting an absent name is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM known_paths WHERE name = ?", strings.TrimSpace(name)); err != nil {
		return fmt.Errorf("delete path %q: %w", name, err)
	}
	return nil
}

// List returns every entry ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, path, updated_at FROM known_paths ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated string
		if err := rows.Scan(&e.Name, &e.Path, &updated); err != nil {
			return nil, fmt.Errorf("scan path row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			e.UpdatedAt = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
