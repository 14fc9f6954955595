package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents one applied schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migration pairs an embedded SQL script with its version metadata.
type migration struct {
	version     int
	description string
	sql         string
}

// migrations is the ordered list of schema scripts. Append only; released
// versions must never be edited because their checksums are recorded.
var migrations = []migration{
	{
		version:     1,
		description: "entities and secondary index tables",
		sql: `
CREATE TABLE entities (
    entity_type TEXT NOT NULL,
    key TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (entity_type, key)
);

CREATE TABLE entity_index (
    entity_type TEXT NOT NULL,
    index_name TEXT NOT NULL,
    index_value TEXT NOT NULL,
    key TEXT NOT NULL,
    PRIMARY KEY (entity_type, index_name, key),
    FOREIGN KEY (entity_type, key) REFERENCES entities(entity_type, key) ON DELETE CASCADE
);

CREATE INDEX idx_entity_index_lookup
    ON entity_index(entity_type, index_name, index_value);
`,
	},
	{
		version:     2,
		description: "durable outbound sync queue",
		sql: `
CREATE TABLE sync_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trace_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    action TEXT NOT NULL,
    data_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_sync_queue_entity_type ON sync_queue(entity_type, id);
`,
	},
}

// Migrator applies embedded schema migrations in version order.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a Migrator over an open database.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the highest applied schema version (0 when fresh).
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Applied returns all applied migrations in version order.
func (m *Migrator) Applied() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies every pending migration. Each script runs in its own
// transaction together with its schema_migrations row, so a crash mid-way
// leaves the database at a clean intermediate version.
func (m *Migrator) Up() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, mig := range migrations {
		if mig.version <= current {
			if err := m.verifyChecksum(mig); err != nil {
				return err
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: begin: %w", mig.version, err)
		}

		if _, err := tx.Exec(mig.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", mig.version, mig.description, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			mig.version, time.Now().Unix(), mig.description, checksum(mig.sql),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: record: %w", mig.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", mig.version, err)
		}
	}

	return nil
}

// verifyChecksum guards against an already-applied script being edited.
func (m *Migrator) verifyChecksum(mig migration) error {
	var recorded string
	err := m.db.QueryRow("SELECT checksum FROM schema_migrations WHERE version = ?", mig.version).Scan(&recorded)
	if err == sql.ErrNoRows {
		return nil // version gap from an older build; Up will not re-run it
	}
	if err != nil {
		return fmt.Errorf("migration %d: checksum lookup: %w", mig.version, err)
	}
	if recorded != checksum(mig.sql) {
		return fmt.Errorf("migration %d (%s): embedded SQL no longer matches applied checksum", mig.version, mig.description)
	}
	return nil
}

func checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}

// OpenAndMigrate opens the database and brings the schema up to date.
func OpenAndMigrate(dataDir string) (*DB, error) {
	database, err := Open(dataDir)
	if err != nil {
		return nil, err
	}

	migrator := NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}
