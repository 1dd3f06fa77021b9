package handlers

import (
	"github.com/gofiber/fiber/v2"

	"heartline/internal/middleware"
	"heartline/internal/models"
	"heartline/internal/services"
)

// SessionHandler exposes get-or-create session and the persona gender preference
type SessionHandler struct {
	ledger *services.QuotaLedger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(ledger *services.QuotaLedger) *SessionHandler {
	return &SessionHandler{ledger: ledger}
}

// GetOrCreate handles POST /api/session. Resolution already created the entry.
func (h *SessionHandler) GetOrCreate(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, services.ErrIdentityUnresolvable)
	}
	entry := middleware.LedgerEntryFrom(c)
	if entry == nil {
		return writeError(c, services.ErrIdentityUnresolvable)
	}

	status := fiber.StatusOK
	if identity.IsNewlyCreated {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(sessionResponse(identity, entry))
}

// UpdatePreferences handles PUT /api/session/preferences
func (h *SessionHandler) UpdatePreferences(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, services.ErrIdentityUnresolvable)
	}

	var req models.UpdatePreferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request body")
	}

	gender, valid := models.ParseGender(req.Gender)
	if !valid {
		return writeError(c, services.ErrInvalidPreference)
	}

	entry, err := h.ledger.SetPreferences(c.UserContext(), identity.Key, gender)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(sessionResponse(identity, entry))
}

func sessionResponse(identity models.Identity, entry *models.LedgerEntry) models.SessionResponse {
	ids := entry.AccessiblePersonaIDs
	if ids == nil {
		ids = []int{}
	}
	return models.SessionResponse{
		Key:                    identity.Key,
		Kind:                   identity.Kind,
		IsNew:                  identity.IsNewlyCreated,
		Balance:                entry.Balance,
		WelcomeGranted:         entry.WelcomeGranted,
		PreferredPersonaGender: entry.PreferredPersonaGender,
		AccessiblePersonaIDs:   ids,
	}
}
