package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/service"
)

// SaleServiceInterface defines the interface for the sale status read path.
type SaleServiceInterface interface {
	GetStatus(ctx context.Context, saleID string) (*model.SaleStatusResponse, error)
}

// SaleHandler handles HTTP requests for sale status.
type SaleHandler struct {
	sales SaleServiceInterface
}

// NewSaleHandler creates a new SaleHandler.
func NewSaleHandler(sales SaleServiceInterface) *SaleHandler {
	return &SaleHandler{sales: sales}
}

// Status handles GET /flash-sale/status. With no sale_id query parameter it
// reports the current active sale; data is null when no sale matches.
func (h *SaleHandler) Status(c *fiber.Ctx) error {
	saleID := c.Query("sale_id")

	status, err := h.sales.GetStatus(c.Context(), saleID)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			return respondData(c, fiber.StatusOK, nil)
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("sale_id", saleID).
			Msg("failed to read sale status")
		return respondInternal(c)
	}
	return respondData(c, fiber.StatusOK, status)
}
