package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/metrics"
	"github.com/fairyhunter13/flash-sale-processor/internal/queue"
)

// QueueStatsInterface defines the queue telemetry surface.
type QueueStatsInterface interface {
	GetStats(ctx context.Context) (*queue.Stats, error)
}

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueHandler handles queue telemetry and system health requests.
type QueueHandler struct {
	q     QueueStatsInterface
	db    Pinger
	store Pinger
}

// NewQueueHandler creates a new QueueHandler with the given queue and pingers.
func NewQueueHandler(q QueueStatsInterface, db, store Pinger) *QueueHandler {
	return &QueueHandler{q: q, db: db, store: store}
}

// Stats handles GET /queue/stats (admin only).
func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.q.GetStats(c.Context())
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Msg("failed to read queue stats")
		return respondInternal(c)
	}

	metrics.QueueDepth.WithLabelValues("waiting").Set(float64(stats.Waiting))
	metrics.QueueDepth.WithLabelValues("active").Set(float64(stats.Active))
	metrics.QueueDepth.WithLabelValues("delayed").Set(float64(stats.Delayed))

	return respondData(c, fiber.StatusOK, stats)
}

// Health handles GET /queue/health. Healthy requires both the database and
// the coordination store to respond.
func (h *QueueHandler) Health(c *fiber.Ctx) error {
	system := fiber.Map{"database": "up", "redis": "up"}
	healthy := true

	if err := h.db.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		system["database"] = "down"
		healthy = false
	}
	if err := h.store.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: coordination store unreachable")
		system["redis"] = "down"
		healthy = false
	}

	status := "healthy"
	code := fiber.StatusOK
	if !healthy {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"system": system,
	})
}
