package handlers

import (
	"github.com/gofiber/fiber/v2"

	"heartline/internal/middleware"
	"heartline/internal/models"
	"heartline/internal/services"
)

// PersonaHandler serves the catalogue and the caller's per-persona settings
type PersonaHandler struct {
	personas *services.PersonaService
}

// NewPersonaHandler creates a new persona handler
func NewPersonaHandler(personas *services.PersonaService) *PersonaHandler {
	return &PersonaHandler{personas: personas}
}

// List handles GET /api/personas
func (h *PersonaHandler) List(c *fiber.Ctx) error {
	personas := h.personas.List()
	if personas == nil {
		personas = []models.Persona{}
	}
	return c.JSON(fiber.Map{"personas": personas, "pool": h.personas.Pool()})
}

// GetSettings handles GET /api/personas/:personaId/settings
func (h *PersonaHandler) GetSettings(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, services.ErrIdentityUnresolvable)
	}
	personaID, ok := personaIDParam(c)
	if !ok {
		return badRequest(c, "invalid_persona", "Invalid persona id")
	}

	settings, err := h.personas.Settings(c.UserContext(), identity.Key, personaID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(settings)
}

// UpdateSettings handles PUT /api/personas/:personaId/settings. Settings are keyed by the
// caller's own identity, so nobody can write another identity's settings.
func (h *PersonaHandler) UpdateSettings(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, services.ErrIdentityUnresolvable)
	}
	personaID, ok := personaIDParam(c)
	if !ok {
		return badRequest(c, "invalid_persona", "Invalid persona id")
	}

	var req models.UpdatePersonaSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request body")
	}

	settings, err := h.personas.UpdateSettings(c.UserContext(), identity.Key, personaID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(settings)
}
