package model

import "time"

// Order states. pending -> confirmed | failed; terminal thereafter.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderFailed    = "failed"
)

// Order represents a purchase. The UNIQUE(user_id, product_id) constraint on
// the orders table is the authoritative backstop against double-purchase.
type Order struct {
	ID        string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// SaleStats is the derived aggregate served by the admin stats endpoint,
// cached under sale_stats:<saleId>.
type SaleStats struct {
	SaleID            string  `json:"sale_id"`
	TotalOrders       int     `json:"total_orders"`
	Confirmed         int     `json:"confirmed"`
	Pending           int     `json:"pending"`
	Failed            int     `json:"failed"`
	TotalQuantity     int     `json:"total_quantity"`
	AvailableQuantity int     `json:"available_quantity"`
	SoldQuantity      int     `json:"sold_quantity"`
	ConversionRate    float64 `json:"conversion_rate"`
}
