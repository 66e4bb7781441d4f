package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/service"
)

// StatsServiceInterface defines the interface for sale stats aggregation.
type StatsServiceInterface interface {
	GetSaleStats(ctx context.Context, saleID string) (*model.SaleStats, error)
}

// AdminHandler handles admin-only read endpoints.
type AdminHandler struct {
	stats StatsServiceInterface
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(stats StatsServiceInterface) *AdminHandler {
	return &AdminHandler{stats: stats}
}

// SaleStats handles GET /admin/flash-sale/:saleId/stats.
func (h *AdminHandler) SaleStats(c *fiber.Ctx) error {
	saleID := c.Params("saleId")

	stats, err := h.stats.GetSaleStats(c.Context(), saleID)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			return respondError(c, fiber.StatusNotFound, "NOT_FOUND", "sale not found")
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("sale_id", saleID).
			Msg("failed to compute sale stats")
		return respondInternal(c)
	}
	return respondData(c, fiber.StatusOK, stats)
}
