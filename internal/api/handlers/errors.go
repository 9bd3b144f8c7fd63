package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/invoscore/backend/pkg/apperr"
	"github.com/invoscore/backend/pkg/logger"
)

// respondError maps the error taxonomy onto HTTP status codes.
func respondError(c *fiber.Ctx, err error) error {
	var notFound *apperr.NotFoundError
	var validation *apperr.ValidationError
	var conflict *apperr.ConflictError
	var configuration *apperr.ConfigurationError

	switch {
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": notFound.Error()})
	case errors.As(err, &validation):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": validation.Error()})
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": conflict.Error()})
	case errors.As(err, &configuration):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": configuration.Error()})
	default:
		logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}
