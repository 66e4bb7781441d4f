package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/pkg/database"
)

// StockRepositoryInterface defines the interface for stock data access.
type StockRepositoryInterface interface {
	Get(ctx context.Context, productID string) (*model.Stock, error)
	Reserve(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error)
	Confirm(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error)
	Release(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error)
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StockService is the sole mutator of stock rows. It implements the
// reserve/confirm/release protocol: reserve claims units, confirm finalizes
// them, release compensates a reservation whose order never materialized.
type StockService struct {
	pool TxBeginner
	repo StockRepositoryInterface
}

// NewStockService creates a new StockService with the given pool and repository.
func NewStockService(pool *pgxpool.Pool, repo StockRepositoryInterface) *StockService {
	return &StockService{pool: pool, repo: repo}
}

// NewStockServiceWithTxBeginner creates a StockService with a custom TxBeginner.
// Primarily used for testing.
func NewStockServiceWithTxBeginner(pool TxBeginner, repo StockRepositoryInterface) *StockService {
	return &StockService{pool: pool, repo: repo}
}

// Get returns the stock row for a product, or nil when none exists.
func (s *StockService) Get(ctx context.Context, productID string) (*model.Stock, error) {
	return s.repo.Get(ctx, productID)
}

func (s *StockService) inTx(ctx context.Context, fn func(tx pgx.Tx) (*model.Stock, error)) (*model.Stock, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	stock, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return stock, nil
}

// Reserve atomically moves qty units from available to reserved.
// Returns ErrOutOfStock when not enough units are available.
func (s *StockService) Reserve(ctx context.Context, productID string, qty int) (*model.Stock, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*model.Stock, error) {
		return s.repo.Reserve(ctx, tx, productID, qty)
	})
}

// Confirm finalizes qty reserved units in its own transaction.
func (s *StockService) Confirm(ctx context.Context, productID string, qty int) (*model.Stock, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*model.Stock, error) {
		return s.repo.Confirm(ctx, tx, productID, qty)
	})
}

// ConfirmTx finalizes qty reserved units inside the caller's transaction.
// The purchase worker uses this so the order row flips to confirmed in the
// same transaction that decrements reserved.
func (s *StockService) ConfirmTx(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error) {
	return s.repo.Confirm(ctx, tx, productID, qty)
}

// Release returns qty reserved units to available. Inverse of Reserve, used
// when order creation fails after a reservation.
func (s *StockService) Release(ctx context.Context, productID string, qty int) (*model.Stock, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*model.Stock, error) {
		return s.repo.Release(ctx, tx, productID, qty)
	})
}
