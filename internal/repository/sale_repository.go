package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/service"
)

const saleDetailColumns = `
	s.id, s.product_id, s.start_time, s.end_time, s.status, s.created_at, s.updated_at,
	p.id, p.name, p.description, p.price::text, p.image_url, p.created_at, p.updated_at,
	st.product_id, st.total_quantity, st.available_quantity, st.reserved_quantity, st.last_updated`

// SaleRepository provides data access for flash sales using pgx.
type SaleRepository struct {
	pool PoolInterface
}

// NewSaleRepository creates a new SaleRepository with the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// NewSaleRepositoryWithPool creates a new SaleRepository with a custom pool interface.
// This is primarily used for testing.
func NewSaleRepositoryWithPool(pool PoolInterface) *SaleRepository {
	return &SaleRepository{pool: pool}
}

func scanSaleDetail(row pgx.Row) (*model.SaleDetail, error) {
	var d model.SaleDetail
	var price string
	err := row.Scan(
		&d.Sale.ID, &d.Sale.ProductID, &d.Sale.StartTime, &d.Sale.EndTime,
		&d.Sale.Status, &d.Sale.CreatedAt, &d.Sale.UpdatedAt,
		&d.Product.ID, &d.Product.Name, &d.Product.Description, &price,
		&d.Product.ImageURL, &d.Product.CreatedAt, &d.Product.UpdatedAt,
		&d.Stock.ProductID, &d.Stock.TotalQuantity, &d.Stock.AvailableQuantity,
		&d.Stock.ReservedQuantity, &d.Stock.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	d.Product.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	return &d, nil
}

// GetDetail retrieves the joined (sale, product, stock) row for a sale.
// Returns service.ErrSaleNotFound if the sale doesn't exist.
func (r *SaleRepository) GetDetail(ctx context.Context, saleID string) (*model.SaleDetail, error) {
	query := `
		SELECT ` + saleDetailColumns + `
		FROM flash_sales s
		JOIN products p ON p.id = s.product_id
		JOIN stocks st ON st.product_id = s.product_id
		WHERE s.id = $1`

	d, err := scanSaleDetail(r.pool.QueryRow(ctx, query, saleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrSaleNotFound
		}
		return nil, fmt.Errorf("get sale detail %s: %w", saleID, err)
	}
	return d, nil
}

// GetActiveDetail retrieves the most recently started sale whose window
// contains now. Returns service.ErrSaleNotFound when no sale is active.
func (r *SaleRepository) GetActiveDetail(ctx context.Context, now time.Time) (*model.SaleDetail, error) {
	query := `
		SELECT ` + saleDetailColumns + `
		FROM flash_sales s
		JOIN products p ON p.id = s.product_id
		JOIN stocks st ON st.product_id = s.product_id
		WHERE s.start_time <= $1 AND s.end_time >= $1 AND s.status <> $2
		ORDER BY s.start_time DESC
		LIMIT 1`

	d, err := scanSaleDetail(r.pool.QueryRow(ctx, query, now, model.SaleEnded))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrSaleNotFound
		}
		return nil, fmt.Errorf("get active sale detail: %w", err)
	}
	return d, nil
}

// ActivateDue flips upcoming sales whose window has opened to active.
// Returns the ids of the transitioned sales so callers can invalidate caches.
func (r *SaleRepository) ActivateDue(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE flash_sales
		SET status = $1, updated_at = $2
		WHERE status = $3 AND start_time <= $2 AND end_time >= $2
		RETURNING id`

	return r.collectIDs(ctx, query, model.SaleActive, now, model.SaleUpcoming)
}

// EndDue flips active sales whose window has closed to ended.
// Returns the ids of the transitioned sales.
func (r *SaleRepository) EndDue(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE flash_sales
		SET status = $1, updated_at = $2
		WHERE status = $3 AND end_time < $2
		RETURNING id`

	return r.collectIDs(ctx, query, model.SaleEnded, now, model.SaleActive)
}

func (r *SaleRepository) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transition sales: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sale id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}
	return ids, nil
}
