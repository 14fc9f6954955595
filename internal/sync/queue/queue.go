// Package queue provides the durable FIFO queue of outbound mutations.
//
// Rows live in the sync_queue table; the INTEGER PRIMARY KEY is monotonic,
// so insertion order is drain order. Items for the same entity type are
// always processed oldest-first, which is what guarantees a shift's close
// is never sent before its create. No item is ever dropped except by an
// explicit Remove after a confirmed server acknowledgment.
package queue

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
	"github.com/tilldesk/possync/internal/uuid"
)

// Queue manages pending outbound mutations backed by sqlite.
type Queue struct {
	db *sql.DB
}

// New creates a Queue over an open, migrated database.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

const insertSQL = `
INSERT INTO sync_queue (trace_id, entity_type, action, data_id, payload, attempts, last_error, created_at)
VALUES (?, ?, ?, ?, ?, 0, '', ?)`

// AppendTx inserts a queue item inside an existing transaction. The local
// store uses this to commit an entity write and its queue entry as one
// atomic unit. Fills in TraceID, CreatedAt and ID on the item.
func AppendTx(tx *sql.Tx, item *models.SyncQueueItem) error {
	if item.TraceID == "" {
		item.TraceID = uuid.New()
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().Unix()
	}

	res, err := tx.Exec(insertSQL,
		item.TraceID, item.EntityType, item.Action, item.DataID,
		string(item.Payload), item.CreatedAt)
	if err != nil {
		return apperrors.Storage("failed to append queue item", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.Storage("failed to read queue item id", err)
	}
	item.ID = id

	slog.Debug("queued mutation",
		"entity_type", item.EntityType,
		"action", item.Action,
		"data_id", item.DataID,
		"queue_id", item.ID)
	return nil
}

// Append inserts a queue item in its own transaction. Mutations that must
// be atomic with an entity write go through store.PutWithQueue instead.
func (q *Queue) Append(item *models.SyncQueueItem) error {
	tx, err := q.db.Begin()
	if err != nil {
		return apperrors.Storage("failed to begin queue transaction", err)
	}
	if err := AppendTx(tx, item); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Storage("failed to commit queue append", err)
	}
	return nil
}

const selectColumns = "id, trace_id, entity_type, action, data_id, payload, attempts, last_error, created_at"

// PeekNext returns the oldest queued item for an entity type, or nil when
// the type has no pending items. The item is not removed.
func (q *Queue) PeekNext(entityType string) (*models.SyncQueueItem, error) {
	return q.PeekAfter(entityType, 0)
}

// PeekAfter returns the oldest queued item for an entity type with an id
// greater than afterID. The engine uses this to continue past an item that
// was rejected by the server while keeping FIFO order for the rest.
func (q *Queue) PeekAfter(entityType string, afterID int64) (*models.SyncQueueItem, error) {
	row := q.db.QueryRow(
		"SELECT "+selectColumns+" FROM sync_queue WHERE entity_type = ? AND id > ? ORDER BY id LIMIT 1",
		entityType, afterID)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("failed to peek queue", err)
	}
	return item, nil
}

// Remove deletes an acknowledged item. Only called after the server
// confirmed the mutation and reconciliation committed.
func (q *Queue) Remove(itemID int64) error {
	res, err := q.db.Exec("DELETE FROM sync_queue WHERE id = ?", itemID)
	if err != nil {
		return apperrors.Storage("failed to remove queue item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage("failed to confirm queue removal", err)
	}
	if affected == 0 {
		return apperrors.NotFound(fmt.Sprintf("queue item %d not found", itemID))
	}
	return nil
}

// MarkFailed increments the attempt counter and records the last error.
// The item stays in place so the failure remains visible to the operator.
func (q *Queue) MarkFailed(itemID int64, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	res, err := q.db.Exec(
		"UPDATE sync_queue SET attempts = attempts + 1, last_error = ? WHERE id = ?",
		message, itemID)
	if err != nil {
		return apperrors.Storage("failed to mark queue item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage("failed to confirm queue update", err)
	}
	if affected == 0 {
		return apperrors.NotFound(fmt.Sprintf("queue item %d not found", itemID))
	}
	return nil
}

// PendingCount returns the total number of queued items.
func (q *Queue) PendingCount() (int, error) {
	var count int
	if err := q.db.QueryRow("SELECT COUNT(*) FROM sync_queue").Scan(&count); err != nil {
		return 0, apperrors.Storage("failed to count queue", err)
	}
	return count, nil
}

// EntityTypes returns the distinct entity types with queued items, ordered
// by their oldest item so long-starved types drain first.
func (q *Queue) EntityTypes() ([]string, error) {
	rows, err := q.db.Query(
		"SELECT entity_type FROM sync_queue GROUP BY entity_type ORDER BY MIN(id)")
	if err != nil {
		return nil, apperrors.Storage("failed to list queue entity types", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var entityType string
		if err := rows.Scan(&entityType); err != nil {
			return nil, apperrors.Storage("failed to scan entity type", err)
		}
		types = append(types, entityType)
	}
	return types, rows.Err()
}

// ListPending returns all queued items in insertion order.
func (q *Queue) ListPending() ([]*models.SyncQueueItem, error) {
	rows, err := q.db.Query("SELECT " + selectColumns + " FROM sync_queue ORDER BY id")
	if err != nil {
		return nil, apperrors.Storage("failed to list queue", err)
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, apperrors.Storage("failed to scan queue item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.SyncQueueItem, error) {
	var item models.SyncQueueItem
	var payload string
	err := s.Scan(&item.ID, &item.TraceID, &item.EntityType, &item.Action,
		&item.DataID, &payload, &item.Attempts, &item.LastError, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	item.Payload = []byte(payload)
	return &item, nil
}
