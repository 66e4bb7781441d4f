package handler

import "github.com/gofiber/fiber/v2"

// All responses share the {success, data?, error?, message?} envelope.

func respondData(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func respondError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   code,
		"message": message,
	})
}

func respondInternal(c *fiber.Ctx) error {
	return respondError(c, fiber.StatusInternalServerError, "INTERNAL", "internal server error")
}
