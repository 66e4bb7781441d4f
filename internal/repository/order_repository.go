package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/service"
	"github.com/fairyhunter13/flash-sale-processor/pkg/database"
)

// OrderRepository provides data access for orders using pgx.
type OrderRepository struct {
	pool PoolInterface
}

// NewOrderRepository creates a new OrderRepository with the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NewOrderRepositoryWithPool creates a new OrderRepository with a custom pool interface.
// This is primarily used for testing.
func NewOrderRepositoryWithPool(pool PoolInterface) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert inserts a new pending order within a transaction.
// Returns service.ErrAlreadyPurchased when the UNIQUE(user_id, product_id)
// constraint rejects the row. This is the race-safe dedup backstop: even a
// replayed job cannot create a second order for the same (user, product).
func (r *OrderRepository) Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
	query := `INSERT INTO orders (id, user_id, product_id, status) VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, query, order.ID, order.UserID, order.ProductID, order.Status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrAlreadyPurchased
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByUserProduct retrieves the order a user holds for a product within a
// transaction. Returns nil, nil when no order exists. The worker uses this to
// resume a replayed job that already inserted its order row.
func (r *OrderRepository) GetByUserProduct(ctx context.Context, tx database.TxQuerier, userID, productID string) (*model.Order, error) {
	query := `
		SELECT id, user_id, product_id, status, created_at, updated_at
		FROM orders
		WHERE user_id = $1 AND product_id = $2`

	var order model.Order
	err := tx.QueryRow(ctx, query, userID, productID).Scan(
		&order.ID,
		&order.UserID,
		&order.ProductID,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order for user %s product %s: %w", userID, productID, err)
	}
	return &order, nil
}

// UpdateStatus sets the status of an order within a transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx database.TxQuerier, orderID, status string) error {
	query := `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	_, err := tx.Exec(ctx, query, orderID, status)
	if err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	return nil
}

// CountByStatus groups orders for a product by status.
// Missing statuses are absent from the map (callers default to zero).
func (r *OrderRepository) CountByStatus(ctx context.Context, productID string) (map[string]int, error) {
	query := `SELECT status, count(*) FROM orders WHERE product_id = $1 GROUP BY status`

	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("count orders for %s: %w", productID, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order counts: %w", err)
	}
	return counts, nil
}
