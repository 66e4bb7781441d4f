package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/service"
)

// mockStatsService is a mock implementation of StatsServiceInterface.
type mockStatsService struct {
	getSaleStatsFn func(ctx context.Context, saleID string) (*model.SaleStats, error)
}

func (m *mockStatsService) GetSaleStats(ctx context.Context, saleID string) (*model.SaleStats, error) {
	if m.getSaleStatsFn != nil {
		return m.getSaleStatsFn(ctx, saleID)
	}
	return nil, service.ErrSaleNotFound
}

func setupAdminTestApp(stats *mockStatsService) *fiber.App {
	app := fiber.New()
	h := NewAdminHandler(stats)
	app.Get("/admin/flash-sale/:saleId/stats", h.SaleStats)
	return app
}

func TestAdminSaleStats_Success(t *testing.T) {
	stats := &mockStatsService{
		getSaleStatsFn: func(ctx context.Context, saleID string) (*model.SaleStats, error) {
			return &model.SaleStats{
				SaleID:         saleID,
				TotalOrders:    100,
				Confirmed:      75,
				Pending:        5,
				Failed:         20,
				SoldQuantity:   75,
				ConversionRate: 0.75,
			}, nil
		},
	}
	app := setupAdminTestApp(stats)

	req := httptest.NewRequest(http.MethodGet, "/admin/flash-sale/sale_001/stats", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	data := result["data"].(map[string]any)
	assert.Equal(t, "sale_001", data["sale_id"])
	assert.Equal(t, float64(75), data["confirmed"])
	assert.Equal(t, 0.75, data["conversion_rate"])
}

func TestAdminSaleStats_NotFound(t *testing.T) {
	app := setupAdminTestApp(&mockStatsService{})

	req := httptest.NewRequest(http.MethodGet, "/admin/flash-sale/missing/stats", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAdminSaleStats_InternalError(t *testing.T) {
	stats := &mockStatsService{
		getSaleStatsFn: func(ctx context.Context, saleID string) (*model.SaleStats, error) {
			return nil, errors.New("db down")
		},
	}
	app := setupAdminTestApp(stats)

	req := httptest.NewRequest(http.MethodGet, "/admin/flash-sale/sale_001/stats", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
