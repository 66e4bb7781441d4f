package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/auth"
	"github.com/fairyhunter13/flash-sale-processor/internal/metrics"
	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/service"
)

// AdmissionServiceInterface defines the interface for purchase admission.
type AdmissionServiceInterface interface {
	Admit(ctx context.Context, userID, saleID string) (*model.AdmitResponse, error)
}

// StatusServiceInterface defines the interface for purchase status reads.
type StatusServiceInterface interface {
	GetUserStatus(ctx context.Context, userID string) (*model.UserPurchaseState, error)
	GetJobStatus(ctx context.Context, jobID string) (*model.PurchaseJob, error)
}

// PurchaseHandler handles HTTP requests for the purchase pipeline.
type PurchaseHandler struct {
	admissions AdmissionServiceInterface
	statuses   StatusServiceInterface
	validator  *validator.Validate
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(admissions AdmissionServiceInterface, statuses StatusServiceInterface, v *validator.Validate) *PurchaseHandler {
	return &PurchaseHandler{admissions: admissions, statuses: statuses, validator: v}
}

// Purchase handles POST /purchase: admit the intent and return 202 with the
// job id. The body is optional; an empty body targets the active sale.
func (h *PurchaseHandler) Purchase(c *fiber.Ctx) error {
	user := auth.UserFromCtx(c)

	var req model.PurchaseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, fiber.StatusBadRequest, service.CodeInvalidRequest, "invalid request body")
		}
		if err := h.validator.Struct(req); err != nil {
			return respondError(c, fiber.StatusBadRequest, service.CodeInvalidRequest, "invalid request: sale_id is invalid")
		}
	}

	resp, err := h.admissions.Admit(c.Context(), user.ID, req.SaleID)
	if err != nil {
		code := service.Code(err)
		if code != "" {
			metrics.AdmissionsTotal.WithLabelValues(code).Inc()
		}
		switch {
		case errors.Is(err, service.ErrDuplicateInFlight):
			return respondError(c, fiber.StatusConflict, service.CodeDuplicateInFlight, "a purchase is already in flight for this user")
		case errors.Is(err, service.ErrAlreadyPurchased):
			return respondError(c, fiber.StatusConflict, service.CodeAlreadyPurchased, "user has already purchased this product")
		case errors.Is(err, service.ErrTooManyAttempts):
			return respondError(c, fiber.StatusTooManyRequests, service.CodeTooManyAttempts, "too many purchase attempts, slow down")
		case errors.Is(err, service.ErrSaleNotActive):
			return respondError(c, fiber.StatusConflict, service.CodeSaleNotActive, "no active flash sale")
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", user.ID).
			Msg("failed to admit purchase")
		return respondInternal(c)
	}

	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	return respondData(c, fiber.StatusAccepted, resp)
}

// PurchaseStatus handles GET /purchase/status: the user's most recent
// purchase state. An absent state means no purchase in flight.
func (h *PurchaseHandler) PurchaseStatus(c *fiber.Ctx) error {
	user := auth.UserFromCtx(c)

	state, err := h.statuses.GetUserStatus(c.Context(), user.ID)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", user.ID).
			Msg("failed to read purchase status")
		return respondInternal(c)
	}
	if state == nil {
		return respondData(c, fiber.StatusOK, fiber.Map{"status": "none"})
	}
	return respondData(c, fiber.StatusOK, state)
}

// JobStatus handles GET /purchase/job/:jobId.
func (h *PurchaseHandler) JobStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")

	job, err := h.statuses.GetJobStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return respondError(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("job_id", jobID).
			Msg("failed to read job status")
		return respondInternal(c)
	}
	return respondData(c, fiber.StatusOK, job)
}
