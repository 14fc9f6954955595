// Package store provides durable keyed persistence for local-first
// entities. Values are stored as JSON envelopes in the entities table;
// registered index extractors maintain the entity_index table so lookups
// like "the open shift for register X" never scan.
//
// Every write is committed before the call returns: a crash after return
// implies the write survived. The one composite operation, PutWithQueue,
// commits an entity write and its outbound queue entry in a single sqlite
// transaction so neither can exist without the other.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tilldesk/possync/internal/db"
	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/sync/queue"
)

// IndexFunc extracts an index value from a stored entity. Returning false
// removes the entity from that index (e.g. a closed shift leaves the
// "open by register" index).
type IndexFunc func(data []byte) (value string, ok bool)

// Store is the LocalStore: durable, keyed, indexed JSON persistence.
type Store struct {
	db *sql.DB

	mu      sync.RWMutex
	indexes map[string]map[string]IndexFunc // entityType -> indexName -> fn
}

// New creates a Store over an open, migrated database.
func New(database *db.DB) *Store {
	return &Store{
		db:      database.DB,
		indexes: make(map[string]map[string]IndexFunc),
	}
}

// DB exposes the underlying handle for collaborators that share the same
// database file (the sync queue).
func (s *Store) DB() *sql.DB {
	return s.db
}

// RegisterIndex registers a secondary index for an entity type. Indexes are
// maintained on every Put of that type. Must be called during wiring,
// before writes for the type occur.
func (s *Store) RegisterIndex(entityType, indexName string, fn IndexFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexes[entityType] == nil {
		s.indexes[entityType] = make(map[string]IndexFunc)
	}
	s.indexes[entityType][indexName] = fn
}

// Get returns the raw JSON envelope for an entity, or a NOT_FOUND error.
func (s *Store) Get(entityType, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRow(
		"SELECT data FROM entities WHERE entity_type = ? AND key = ?",
		entityType, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(fmt.Sprintf("%s %q not found", entityType, key))
	}
	if err != nil {
		return nil, apperrors.Storage("failed to read entity", err)
	}
	return []byte(data), nil
}

// GetJSON loads an entity and decodes it into dst.
func (s *Store) GetJSON(entityType, key string, dst any) error {
	data, err := s.Get(entityType, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperrors.Storage("failed to decode entity", err)
	}
	return nil
}

// Put upserts an entity. Durable when the call returns.
func (s *Store) Put(entityType, key string, value any) error {
	return s.writeTx(func(tx *sql.Tx) error {
		return s.putTx(tx, entityType, key, value)
	})
}

// PutWithQueue upserts an entity and appends its outbound queue item as one
// atomic unit. A crash can never produce a mutation without its queue entry
// or a queue entry whose entity write never happened.
func (s *Store) PutWithQueue(entityType, key string, value any, item *models.SyncQueueItem) error {
	return s.writeTx(func(tx *sql.Tx) error {
		if err := s.putTx(tx, entityType, key, value); err != nil {
			return err
		}
		return queue.AppendTx(tx, item)
	})
}

// Delete removes an entity and its index rows. Missing keys are not an
// error: delete is idempotent.
func (s *Store) Delete(entityType, key string) error {
	return s.writeTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"DELETE FROM entity_index WHERE entity_type = ? AND key = ?",
			entityType, key); err != nil {
			return apperrors.Storage("failed to delete index rows", err)
		}
		if _, err := tx.Exec(
			"DELETE FROM entities WHERE entity_type = ? AND key = ?",
			entityType, key); err != nil {
			return apperrors.Storage("failed to delete entity", err)
		}
		return nil
	})
}

// QueryByIndex returns the JSON envelopes of all entities whose registered
// index matches the given value, ordered by key for determinism.
func (s *Store) QueryByIndex(entityType, indexName, indexValue string) ([][]byte, error) {
	rows, err := s.db.Query(`
		SELECT e.data FROM entities e
		JOIN entity_index i ON i.entity_type = e.entity_type AND i.key = e.key
		WHERE i.entity_type = ? AND i.index_name = ? AND i.index_value = ?
		ORDER BY e.key`,
		entityType, indexName, indexValue)
	if err != nil {
		return nil, apperrors.Storage("failed to query index", err)
	}
	defer rows.Close()

	var results [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperrors.Storage("failed to scan entity", err)
		}
		results = append(results, []byte(data))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("failed to iterate index query", err)
	}
	return results, nil
}

// putTx writes the entity row and rebuilds its index rows inside tx.
func (s *Store) putTx(tx *sql.Tx, entityType, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return apperrors.Storage("failed to encode entity", err)
	}

	_, err = tx.Exec(`
		INSERT INTO entities (entity_type, key, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_type, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		entityType, key, string(data), time.Now().Unix())
	if err != nil {
		return apperrors.Storage("failed to write entity", err)
	}

	if _, err := tx.Exec(
		"DELETE FROM entity_index WHERE entity_type = ? AND key = ?",
		entityType, key); err != nil {
		return apperrors.Storage("failed to clear index rows", err)
	}

	s.mu.RLock()
	extractors := s.indexes[entityType]
	s.mu.RUnlock()

	for indexName, fn := range extractors {
		indexValue, ok := fn(data)
		if !ok {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO entity_index (entity_type, index_name, index_value, key) VALUES (?, ?, ?, ?)",
			entityType, indexName, indexValue, key); err != nil {
			return apperrors.Storage("failed to write index row", err)
		}
	}
	return nil
}

// writeTx runs fn inside a transaction. A failure rolls everything back;
// previously committed state is never touched.
func (s *Store) writeTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Storage("failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Storage("failed to commit transaction", err)
	}
	return nil
}
