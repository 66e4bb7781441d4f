package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale lifecycle states. Transitions are monotonic:
// upcoming -> active -> ended.
const (
	SaleUpcoming = "upcoming"
	SaleActive   = "active"
	SaleEnded    = "ended"
)

// FlashSale represents a time-bounded selling window over one product.
type FlashSale struct {
	ID        string    `json:"sale_id"`
	ProductID string    `json:"product_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// StatusAt computes the lifecycle state from the wall clock. The stored
// status column is best-effort (the ticker may lag); readers derive state
// from the window instead of trusting it.
func (s *FlashSale) StatusAt(now time.Time) string {
	switch {
	case now.Before(s.StartTime):
		return SaleUpcoming
	case now.After(s.EndTime):
		return SaleEnded
	default:
		return SaleActive
	}
}

// SaleDetail is the joined (sale, product, stock) row used by the sale
// status read path and the purchase worker.
type SaleDetail struct {
	Sale    FlashSale
	Product Product
	Stock   Stock
}

// SaleStatusResponse is the API projection of a sale, cached under
// flash_sale_status[_<saleId>].
type SaleStatusResponse struct {
	SaleID            string          `json:"sale_id"`
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	Price             decimal.Decimal `json:"price"`
	Status            string          `json:"status"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	TimeUntilStart    int64           `json:"time_until_start"` // seconds, 0 once started
	TimeUntilEnd      int64           `json:"time_until_end"`   // seconds, 0 once ended
	TotalQuantity     int             `json:"total_quantity"`
	AvailableQuantity int             `json:"available_quantity"`
	SoldQuantity      int             `json:"sold_quantity"`
}

// NewSaleStatusResponse projects a joined row into the API layout.
func NewSaleStatusResponse(d *SaleDetail, now time.Time) *SaleStatusResponse {
	untilStart := int64(0)
	if now.Before(d.Sale.StartTime) {
		untilStart = int64(d.Sale.StartTime.Sub(now).Seconds())
	}
	untilEnd := int64(0)
	if now.Before(d.Sale.EndTime) {
		untilEnd = int64(d.Sale.EndTime.Sub(now).Seconds())
	}
	return &SaleStatusResponse{
		SaleID:            d.Sale.ID,
		ProductID:         d.Product.ID,
		ProductName:       d.Product.Name,
		Price:             d.Product.Price,
		Status:            d.Sale.StatusAt(now),
		StartTime:         d.Sale.StartTime,
		EndTime:           d.Sale.EndTime,
		TimeUntilStart:    untilStart,
		TimeUntilEnd:      untilEnd,
		TotalQuantity:     d.Stock.TotalQuantity,
		AvailableQuantity: d.Stock.AvailableQuantity,
		SoldQuantity:      d.Stock.Sold(),
	}
}
