package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps cache entries in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite cache database at path.
//
// The database is configured with:
//   - WAL mode so readers are not blocked by the writer
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// Safe to call repeatedly on the same path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, loc Location) ([]byte, []byte, error) {
	var meta, blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT meta, blob FROM cache_entries WHERE dir = ? AND name = ?`,
		loc.Dir, loc.Name,
	).Scan(&meta, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite store: load %s: %w", loc, err)
	}
	return meta, blob, nil
}

// Save replaces the entry with a single upsert, so metadata and blob always
// change together.
func (s *SQLiteStore) Save(ctx context.Context, loc Location, meta, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (dir, name, meta, blob, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(dir, name) DO UPDATE SET
			meta = excluded.meta,
			blob = excluded.blob,
			updated_at = excluded.updated_at
	`, loc.Dir, loc.Name, meta, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite store: save %s: %w", loc, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, loc Location) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE dir = ? AND name = ?`, loc.Dir, loc.Name)
	if err != nil {
		return fmt.Errorf("sqlite store: remove %s: %w", loc, err)
	}
	return nil
}

func (s *SQLiteStore) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("sqlite store: purge: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the table and its index if they don't exist.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}
