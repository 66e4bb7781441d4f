package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/flash-sale-processor/internal/service"
)

func stockRow(total, available, reserved int) *mockRow {
	return &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "prod_001"
			*dest[1].(*int) = total
			*dest[2].(*int) = available
			*dest[3].(*int) = reserved
			*dest[4].(*time.Time) = time.Now()
			return nil
		},
	}
}

func noRow() *mockRow {
	return &mockRow{
		scanFn: func(dest ...any) error {
			return pgx.ErrNoRows
		},
	}
}

func TestStockRepository_Get_Found(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return stockRow(100, 60, 10)
		},
	}

	repo := NewStockRepositoryWithPool(mock)
	stock, err := repo.Get(context.Background(), "prod_001")

	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Equal(t, 100, stock.TotalQuantity)
	assert.Equal(t, 60, stock.AvailableQuantity)
	assert.Equal(t, 10, stock.ReservedQuantity)
	assert.Equal(t, 30, stock.Sold())
}

func TestStockRepository_Get_NotFound(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return noRow()
		},
	}

	repo := NewStockRepositoryWithPool(mock)
	stock, err := repo.Get(context.Background(), "prod_404")

	require.NoError(t, err)
	assert.Nil(t, stock)
}

func TestStockRepository_Reserve_Success(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			capturedArgs = args
			return stockRow(100, 59, 11)
		},
	}

	repo := NewStockRepositoryWithPool(mock)
	stock, err := repo.Reserve(context.Background(), mock, "prod_001", 1)

	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Equal(t, 59, stock.AvailableQuantity)
	assert.Equal(t, 11, stock.ReservedQuantity)

	// The WHERE clause is the oversell gate.
	assert.Contains(t, capturedSQL, "available_quantity >= $2")
	assert.Equal(t, "prod_001", capturedArgs[0])
	assert.Equal(t, 1, capturedArgs[1])
}

func TestStockRepository_Reserve_OutOfStock(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return noRow()
		},
	}

	repo := NewStockRepositoryWithPool(mock)
	stock, err := repo.Reserve(context.Background(), mock, "prod_001", 1)

	assert.ErrorIs(t, err, service.ErrOutOfStock)
	assert.Nil(t, stock)
}

func TestStockRepository_Confirm_Success(t *testing.T) {
	var capturedSQL string
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			return stockRow(100, 59, 10)
		},
	}

	repo := NewStockRepositoryWithPool(mock)
	stock, err := repo.Confirm(context.Background(), mock, "prod_001", 1)

	require.NoError(t, err)
	require.NotNil(t, stock)

	// Confirm only decrements reserved; available was taken at reserve time.
	assert.Contains(t, capturedSQL, "reserved_quantity >= $2")
	assert.NotContains(t, capturedSQL, "available_quantity =")
}

func TestStockRepository_Confirm_NothingReserved(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return noRow()
		},
	}

	repo := NewStockRepositoryWithPool(mock)
	stock, err := repo.Confirm(context.Background(), mock, "prod_001", 1)

	assert.ErrorIs(t, err, service.ErrInvariantViolation)
	assert.Nil(t, stock)
}

func TestStockRepository_Release_Success(t *testing.T) {
	var capturedSQL string
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			return stockRow(100, 60, 10)
		},
	}

	repo := NewStockRepositoryWithPool(mock)
	stock, err := repo.Release(context.Background(), mock, "prod_001", 1)

	require.NoError(t, err)
	require.NotNil(t, stock)
	assert.Contains(t, capturedSQL, "available_quantity = available_quantity + $2")
	assert.Contains(t, capturedSQL, "reserved_quantity >= $2")
}

func TestStockRepository_Release_NothingReserved(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return noRow()
		},
	}

	repo := NewStockRepositoryWithPool(mock)
	stock, err := repo.Release(context.Background(), mock, "prod_001", 1)

	assert.ErrorIs(t, err, service.ErrInvariantViolation)
	assert.Nil(t, stock)
}
