package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/service"
	"github.com/fairyhunter13/flash-sale-processor/pkg/database"
)

// StockRepository provides data access for stock rows using pgx.
// All mutations are single conditional UPDATEs: the WHERE clause both takes
// the row lock and enforces the quantity precondition, so a 0-row result is
// the out-of-stock / invariant signal rather than a lost race.
type StockRepository struct {
	pool PoolInterface
}

// NewStockRepository creates a new StockRepository with the given pool.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

// NewStockRepositoryWithPool creates a new StockRepository with a custom pool interface.
// This is primarily used for testing.
func NewStockRepositoryWithPool(pool PoolInterface) *StockRepository {
	return &StockRepository{pool: pool}
}

const stockColumns = `product_id, total_quantity, available_quantity, reserved_quantity, last_updated`

func scanStock(row pgx.Row) (*model.Stock, error) {
	var s model.Stock
	err := row.Scan(
		&s.ProductID,
		&s.TotalQuantity,
		&s.AvailableQuantity,
		&s.ReservedQuantity,
		&s.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get retrieves the stock row for a product. Returns nil, nil when not found.
func (r *StockRepository) Get(ctx context.Context, productID string) (*model.Stock, error) {
	query := `SELECT ` + stockColumns + ` FROM stocks WHERE product_id = $1`

	stock, err := scanStock(r.pool.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock for %s: %w", productID, err)
	}
	return stock, nil
}

// Reserve moves qty units from available to reserved.
// Returns service.ErrOutOfStock when fewer than qty units are available.
func (r *StockRepository) Reserve(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error) {
	query := `
		UPDATE stocks
		SET available_quantity = available_quantity - $2,
		    reserved_quantity = reserved_quantity + $2,
		    last_updated = now()
		WHERE product_id = $1 AND available_quantity >= $2
		RETURNING ` + stockColumns

	stock, err := scanStock(tx.QueryRow(ctx, query, productID, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrOutOfStock
		}
		return nil, fmt.Errorf("reserve %d of %s: %w", qty, productID, err)
	}
	return stock, nil
}

// Confirm finalizes qty reserved units by decrementing reserved only
// (available was already decremented at reserve).
// Returns service.ErrInvariantViolation when fewer than qty units are reserved.
func (r *StockRepository) Confirm(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error) {
	query := `
		UPDATE stocks
		SET reserved_quantity = reserved_quantity - $2,
		    last_updated = now()
		WHERE product_id = $1 AND reserved_quantity >= $2
		RETURNING ` + stockColumns

	stock, err := scanStock(tx.QueryRow(ctx, query, productID, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrInvariantViolation
		}
		return nil, fmt.Errorf("confirm %d of %s: %w", qty, productID, err)
	}
	return stock, nil
}

// Release returns qty reserved units to available. Inverse of Reserve.
// Returns service.ErrInvariantViolation when fewer than qty units are reserved.
func (r *StockRepository) Release(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error) {
	query := `
		UPDATE stocks
		SET available_quantity = available_quantity + $2,
		    reserved_quantity = reserved_quantity - $2,
		    last_updated = now()
		WHERE product_id = $1 AND reserved_quantity >= $2
		RETURNING ` + stockColumns

	stock, err := scanStock(tx.QueryRow(ctx, query, productID, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrInvariantViolation
		}
		return nil, fmt.Errorf("release %d of %s: %w", qty, productID, err)
	}
	return stock, nil
}
