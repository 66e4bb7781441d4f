package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
)

func TestStatsService_GetSaleStats_Computes(t *testing.T) {
	detail := activeSaleDetail()
	detail.Stock = model.Stock{ProductID: "prod_001", TotalQuantity: 100, AvailableQuantity: 20, ReservedQuantity: 5}
	sales := &mockSaleReader{
		detailFn: func(ctx context.Context, saleID string) (*model.SaleDetail, error) {
			return detail, nil
		},
	}
	orders := &mockOrderCounter{
		countByStatusFn: func(ctx context.Context, productID string) (map[string]int, error) {
			return map[string]int{
				model.OrderConfirmed: 75,
				model.OrderPending:   5,
				model.OrderFailed:    20,
			}, nil
		},
	}
	var cachedStats *model.SaleStats
	store := &mockStore{
		setSaleStatsFn: func(ctx context.Context, stats *model.SaleStats) error {
			cachedStats = stats
			return nil
		},
	}

	svc := NewStatsService(sales, orders, store)
	stats, err := svc.GetSaleStats(context.Background(), "sale_001")

	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, "sale_001", stats.SaleID)
	assert.Equal(t, 100, stats.TotalOrders)
	assert.Equal(t, 75, stats.Confirmed)
	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, 20, stats.Failed)
	assert.Equal(t, 100, stats.TotalQuantity)
	assert.Equal(t, 20, stats.AvailableQuantity)
	assert.Equal(t, 75, stats.SoldQuantity)
	assert.InDelta(t, 0.75, stats.ConversionRate, 1e-9)

	assert.Same(t, stats, cachedStats, "computed stats must be written back to the cache")
}

func TestStatsService_GetSaleStats_CacheHit(t *testing.T) {
	cached := &model.SaleStats{SaleID: "sale_001", TotalOrders: 10}
	store := &mockStore{
		getSaleStatsFn: func(ctx context.Context, saleID string) (*model.SaleStats, error) {
			return cached, nil
		},
	}
	sales := &mockSaleReader{
		detailFn: func(ctx context.Context, saleID string) (*model.SaleDetail, error) {
			t.Fatal("cache hit must not touch the database")
			return nil, nil
		},
	}

	svc := NewStatsService(sales, &mockOrderCounter{}, store)
	stats, err := svc.GetSaleStats(context.Background(), "sale_001")

	require.NoError(t, err)
	assert.Same(t, cached, stats)
}

func TestStatsService_GetSaleStats_NoOrders(t *testing.T) {
	sales := &mockSaleReader{
		detailFn: func(ctx context.Context, saleID string) (*model.SaleDetail, error) {
			return activeSaleDetail(), nil
		},
	}

	svc := NewStatsService(sales, &mockOrderCounter{}, &mockStore{})
	stats, err := svc.GetSaleStats(context.Background(), "sale_001")

	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalOrders)
	assert.Equal(t, 0.0, stats.ConversionRate, "zero orders must not divide by zero")
}

func TestStatsService_GetSaleStats_SaleNotFound(t *testing.T) {
	svc := NewStatsService(&mockSaleReader{}, &mockOrderCounter{}, &mockStore{})
	stats, err := svc.GetSaleStats(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrSaleNotFound)
	assert.Nil(t, stats)
}

func TestStatsService_GetSaleStats_CountError(t *testing.T) {
	sales := &mockSaleReader{
		detailFn: func(ctx context.Context, saleID string) (*model.SaleDetail, error) {
			return activeSaleDetail(), nil
		},
	}
	orders := &mockOrderCounter{
		countByStatusFn: func(ctx context.Context, productID string) (map[string]int, error) {
			return nil, errors.New("query timeout")
		},
	}

	svc := NewStatsService(sales, orders, &mockStore{})
	stats, err := svc.GetSaleStats(context.Background(), "sale_001")

	require.Error(t, err)
	assert.Nil(t, stats)
}
