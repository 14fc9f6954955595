// Package db provides database connection management and schema migrations
// for the terminal's local sqlite store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB with possync-specific configuration.
type DB struct {
	*sql.DB
}

// Open opens the local sqlite database under dataDir with:
// - WAL mode for concurrent reads while the single writer commits
// - foreign key constraints enabled
// - a busy timeout so the register UI never sees spurious SQLITE_BUSY
//
// SQLite has one writer; the connection pool is capped at 1 so every write
// to a given entity key serializes through the same connection.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "possync.db")

	// modernc.org/sqlite: pure Go, no CGO, safe for terminal deployments.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=FULL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
