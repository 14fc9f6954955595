package models

import "time"

// Inventory movement directions.
const (
	InventoryIn  = "in"
	InventoryOut = "out"
)

// InventoryEntry records one stock movement made at the register.
// EntryNumber is the UUID local key; ID is server-assigned (0 until synced).
type InventoryEntry struct {
	EntryNumber string  `db:"entry_number" json:"entry_number"`
	ID          int64   `db:"id" json:"id"`
	ShiftNumber string  `db:"shift_number" json:"shift_number"`
	ProductCode string  `db:"product_code" json:"product_code"`
	Direction   string  `db:"direction" json:"direction"`
	Quantity    float64 `db:"quantity" json:"quantity"`
	Reason      string  `db:"reason" json:"reason,omitempty"`
	RecordedAt  int64   `db:"recorded_at" json:"recorded_at"`
	SyncStatus  string  `db:"sync_status" json:"sync_status"`
}

// TableName returns the logical entity type for InventoryEntry.
func (InventoryEntry) TableName() string {
	return EntityInventory
}

// RecordedAtTime returns RecordedAt as time.Time.
func (e *InventoryEntry) RecordedAtTime() time.Time {
	return time.Unix(e.RecordedAt, 0)
}
