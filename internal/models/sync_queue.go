package models

import "encoding/json"

// Queue actions. Same-entity-type items are drained in FIFO order, so a
// close for a shift is never sent before its create.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionClose  = "close"
	ActionDelete = "delete"
)

// SyncQueueItem is one pending outbound mutation.
//
// ID is the sqlite rowid and therefore monotonically increasing: insertion
// order IS drain order. DataID is the entity's durable local key (never the
// server id) and doubles as the idempotency token on the wire.
type SyncQueueItem struct {
	ID         int64           `db:"id" json:"id"`
	TraceID    string          `db:"trace_id" json:"trace_id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	Action     string          `db:"action" json:"action"`
	DataID     string          `db:"data_id" json:"data_id"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Attempts   int             `db:"attempts" json:"attempts"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}
