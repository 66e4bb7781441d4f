package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents an item that can be sold in a flash sale.
type Product struct {
	ID          string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"` // fixed-point, 2 decimals
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"-"`
	UpdatedAt   time.Time       `json:"-"`
}

// Stock tracks inventory for a product (1:1 with Product).
//
// Invariant: total_quantity = available_quantity + reserved_quantity + sold,
// where total_quantity is set at stock creation and never mutated by the
// purchase path.
type Stock struct {
	ProductID         string    `json:"product_id"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	ReservedQuantity  int       `json:"reserved_quantity"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Sold derives the number of finalized units.
func (s *Stock) Sold() int {
	return s.TotalQuantity - s.AvailableQuantity - s.ReservedQuantity
}
