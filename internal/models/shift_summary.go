package models

// EntityShiftSummary is the LocalStore namespace for summaries. Summaries
// are a derived projection keyed by shift_number, never a source of truth,
// and are not synced through the queue.
const EntityShiftSummary = "shift_summary"

// ShiftSummary is the append-only aggregate of cash, sales and inventory
// movements for one shift. Created with shift-open; a failed creation
// degrades the summary but never blocks cashier operations.
type ShiftSummary struct {
	ShiftNumber  string  `db:"shift_number" json:"shift_number"`
	InitialCash  float64 `db:"initial_cash" json:"initial_cash"`
	CashIn       float64 `db:"cash_in" json:"cash_in"`
	CashOut      float64 `db:"cash_out" json:"cash_out"`
	SalesTotal   float64 `db:"sales_total" json:"sales_total"`
	OrderCount   int     `db:"order_count" json:"order_count"`
	InventoryIn  float64 `db:"inventory_in" json:"inventory_in"`
	InventoryOut float64 `db:"inventory_out" json:"inventory_out"`
	Degraded     bool    `db:"degraded" json:"degraded"`
	UpdatedAt    int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the logical entity type for ShiftSummary.
func (ShiftSummary) TableName() string {
	return EntityShiftSummary
}
