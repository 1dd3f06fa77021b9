package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"heartline/internal/models"
	"heartline/internal/services"
)

// classifyError maps service errors onto HTTP status and a stable error code.
// The same codes are sent over the websocket.
func classifyError(err error) (status int, code, message string) {
	var quotaErr *services.QuotaExhaustedError
	switch {
	case errors.As(err, &quotaErr), errors.Is(err, services.ErrQuotaExhausted):
		return fiber.StatusPaymentRequired, "quota_exhausted", "Not enough diamonds"
	case errors.Is(err, services.ErrIdentityUnresolvable):
		return fiber.StatusBadRequest, "identity_unresolvable", "Could not identify this device"
	case errors.Is(err, services.ErrPersonaNotFound):
		return fiber.StatusNotFound, "persona_not_found", "Persona not found"
	case errors.Is(err, services.ErrInvalidMessage):
		return fiber.StatusBadRequest, "invalid_message", "Message text is required"
	case errors.Is(err, services.ErrInvalidAmount):
		return fiber.StatusBadRequest, "invalid_amount", "Amount must be a positive integer"
	case errors.Is(err, services.ErrInvalidPreference):
		return fiber.StatusBadRequest, "invalid_preference", "Gender must be male, female or both"
	default:
		return fiber.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable"
	}
}

// writeError sends the JSON error body for err
func writeError(c *fiber.Ctx, err error) error {
	status, code, message := classifyError(err)
	body := models.ErrorResponse{Error: message, ErrorCode: code}

	var quotaErr *services.QuotaExhaustedError
	if errors.As(err, &quotaErr) {
		remaining := quotaErr.Remaining
		body.Remaining = &remaining
	}
	if status == fiber.StatusServiceUnavailable {
		log.Printf("❌ [HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: message, ErrorCode: code})
}

// personaIDParam parses :personaId as a positive int
func personaIDParam(c *fiber.Ctx) (int, bool) {
	id, err := c.ParamsInt("personaId")
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
