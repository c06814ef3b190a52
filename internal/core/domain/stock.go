package domain

import "time"

type StockRecord struct {
	Key       string
	Quantity  int64
	Version   int64 // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sufficient reports whether amount can be taken from the record.
func (r StockRecord) Sufficient(amount int64) bool {
	return r.Quantity >= amount
}
