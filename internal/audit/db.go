// Package audit is a local, best-effort SQLite history of completed tasks,
// consensus decisions and forced-lock events — never consulted for
// correctness (spec §3 "Ownership": the store owns all authoritative
// state). Grounded on teacher's internal/memory/db.go: embedded schema,
// WAL mode, a connection-pool-tuned *sql.DB wrapper.
package audit

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DB is the audit trail handle.
type DB struct {
	db *sql.DB
}

// Open creates (if needed) and opens a SQLite database at path, applying
// the embedded schema. Matches teacher's NewMemoryDB connection-string
// pragmas (WAL journal, busy timeout) and pool sizing.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}
