package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/streamvault/streamvault/internal/models"
)

// respondError maps a service error onto the wire. AppErrors carry their own
// status code and safe message; anything else becomes an opaque 500.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{
			"error": appErr.Message,
			"type":  string(appErr.Type),
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}
