package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/cache"
	"github.com/fairyhunter13/flash-sale-processor/internal/model"
)

// OrderCounter groups orders by status for a product.
type OrderCounter interface {
	CountByStatus(ctx context.Context, productID string) (map[string]int, error)
}

// StatsCache defines the coordination-store operations the stats path needs.
type StatsCache interface {
	GetSaleStats(ctx context.Context, saleID string) (*model.SaleStats, error)
	SetSaleStats(ctx context.Context, stats *model.SaleStats) error
}

// StatsService computes derived per-sale counts over orders and stock,
// cached with a 300s TTL.
type StatsService struct {
	sales  SaleReader
	orders OrderCounter
	store  StatsCache
}

// NewStatsService creates a new StatsService.
func NewStatsService(sales SaleReader, orders OrderCounter, store StatsCache) *StatsService {
	return &StatsService{sales: sales, orders: orders, store: store}
}

// GetSaleStats returns the stats aggregate for a sale.
// Returns ErrSaleNotFound when the sale doesn't exist.
func (s *StatsService) GetSaleStats(ctx context.Context, saleID string) (*model.SaleStats, error) {
	stats, err := s.store.GetSaleStats(ctx, saleID)
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		log.Warn().Err(err).Str("sale_id", saleID).Msg("sale stats cache read failed")
	}

	detail, err := s.sales.Detail(ctx, saleID)
	if err != nil {
		if errors.Is(err, ErrSaleNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("load sale detail: %w", err)
	}

	counts, err := s.orders.CountByStatus(ctx, detail.Product.ID)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	confirmed := counts[model.OrderConfirmed]
	pending := counts[model.OrderPending]
	failed := counts[model.OrderFailed]
	total := confirmed + pending + failed

	conversion := 0.0
	if total > 0 {
		conversion = float64(confirmed) / float64(total)
	}

	stats = &model.SaleStats{
		SaleID:            saleID,
		TotalOrders:       total,
		Confirmed:         confirmed,
		Pending:           pending,
		Failed:            failed,
		TotalQuantity:     detail.Stock.TotalQuantity,
		AvailableQuantity: detail.Stock.AvailableQuantity,
		SoldQuantity:      detail.Stock.Sold(),
		ConversionRate:    conversion,
	}
	if cacheErr := s.store.SetSaleStats(ctx, stats); cacheErr != nil {
		log.Warn().Err(cacheErr).Str("sale_id", saleID).Msg("sale stats cache write failed")
	}
	return stats, nil
}
