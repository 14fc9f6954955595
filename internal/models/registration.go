package models

// Registration is the persisted device identity. It is supplied by the
// enrollment flow outside this core and read-only here.
type Registration struct {
	StoreID          string `db:"store_id" json:"store_id"`
	CashRegisterID   string `db:"cash_register_id" json:"cash_register_id"`
	CashRegisterCode string `db:"cash_register_code" json:"cash_register_code,omitempty"`
}

// Valid reports whether the registration identifies a register.
func (r Registration) Valid() bool {
	return r.StoreID != "" && r.CashRegisterID != ""
}
