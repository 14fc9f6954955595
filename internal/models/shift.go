// Package models provides data model definitions for the possync core.
package models

import "time"

// Entity type names used as LocalStore namespaces and sync queue routing
// keys. The remote API derives its resource paths from these.
const (
	EntityShift     = "shift"
	EntityInventory = "inventory_entry"
	EntityOrder     = "order"
)

// Shift status values.
const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

// Sync status values shared by all synced entities.
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

// Shift is one bounded operating period for a cash register.
//
// ShiftNumber is the durable local primary key: client-generated, immutable
// and globally unique per register. ID is assigned by the server; 0 means
// "not yet synced" and must never be used as a lookup key.
type Shift struct {
	ShiftNumber      string  `db:"shift_number" json:"shift_number"`
	ID               int64   `db:"id" json:"id"`
	StoreID          string  `db:"store_id" json:"store_id"`
	CashRegisterID   string  `db:"cash_register_id" json:"cash_register_id"`
	Status           string  `db:"status" json:"status"`
	OpenedAt         int64   `db:"opened_at" json:"opened_at"`
	ClosedAt         int64   `db:"closed_at" json:"closed_at,omitempty"`
	InitialCash      float64 `db:"initial_cash" json:"initial_cash"`
	InventoryBalance float64 `db:"inventory_balance" json:"inventory_balance"`
	SyncStatus       string  `db:"sync_status" json:"sync_status"`
	OpenedByUserID   string  `db:"opened_by_user_id" json:"opened_by_user_id"`
	ClosedByUserID   string  `db:"closed_by_user_id" json:"closed_by_user_id,omitempty"`
	Notes            string  `db:"notes" json:"notes,omitempty"`
}

// TableName returns the logical entity type for Shift.
func (Shift) TableName() string {
	return EntityShift
}

// IsOpen reports whether the shift is currently open.
func (s *Shift) IsOpen() bool {
	return s.Status == ShiftStatusOpen
}

// OpenedAtTime returns OpenedAt as time.Time.
func (s *Shift) OpenedAtTime() time.Time {
	return time.Unix(s.OpenedAt, 0)
}

// ClosedAtTime returns ClosedAt as time.Time (zero time if still open).
func (s *Shift) ClosedAtTime() time.Time {
	if s.ClosedAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ClosedAt, 0)
}
