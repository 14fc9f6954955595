package models

// OrderLine is one line item on an order.
type OrderLine struct {
	ProductCode string  `json:"product_code"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Order is a sale captured at the register.
// OrderNumber is the UUID local key; ID is server-assigned (0 until synced).
type Order struct {
	OrderNumber   string      `db:"order_number" json:"order_number"`
	ID            int64       `db:"id" json:"id"`
	ShiftNumber   string      `db:"shift_number" json:"shift_number"`
	Lines         []OrderLine `db:"lines" json:"lines"`
	Total         float64     `db:"total" json:"total"`
	PaymentMethod string      `db:"payment_method" json:"payment_method"`
	PlacedAt      int64       `db:"placed_at" json:"placed_at"`
	SyncStatus    string      `db:"sync_status" json:"sync_status"`
}

// TableName returns the logical entity type for Order.
func (Order) TableName() string {
	return EntityOrder
}
