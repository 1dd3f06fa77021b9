package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"heartline/internal/middleware"
	"heartline/internal/models"
	"heartline/internal/services"
)

// ChatHandler serves the HTTP chat endpoints
type ChatHandler struct {
	conversations *services.ConversationService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(conversations *services.ConversationService) *ChatHandler {
	return &ChatHandler{conversations: conversations}
}

// SendMessage handles POST /api/chat
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, services.ErrIdentityUnresolvable)
	}

	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request body")
	}
	if req.PersonaID <= 0 {
		return badRequest(c, "invalid_persona", "personaId is required")
	}

	result, err := h.conversations.Handle(c.UserContext(), services.ChatInput{
		Identity:        identity,
		PersonaID:       req.PersonaID,
		Text:            req.Text,
		DeclaredEmotion: req.DeclaredEmotion,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(chatResponse(identity, result))
}

// ClearHistory handles DELETE /api/chat/:personaId/history
func (h *ChatHandler) ClearHistory(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, services.ErrIdentityUnresolvable)
	}
	if !identity.IsRegistered() {
		return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
			Error:     "Only signed-in users have conversation history",
			ErrorCode: "registration_required",
		})
	}

	personaID, ok := personaIDParam(c)
	if !ok {
		return badRequest(c, "invalid_persona", "Invalid persona id")
	}

	removed, err := h.conversations.ClearHistory(c.UserContext(), identity, personaID)
	if err != nil {
		return writeError(c, err)
	}

	log.Printf("🗑️  [CHAT] Cleared %d turns for %s with persona %d", removed, identity.Key, personaID)
	return c.JSON(fiber.Map{"deleted": removed})
}

func chatResponse(identity models.Identity, result *services.ChatResult) models.ChatResponse {
	emotion := result.Emotion
	resp := models.ChatResponse{
		ReplyText:      result.ReplyText,
		RemainingQuota: result.RemainingQuota,
		UsedFallback:   result.UsedFallback,
		Emotion:        &emotion,
	}
	if !identity.IsRegistered() {
		resp.GuestUser = &models.GuestUser{Key: identity.Key}
	}
	return resp
}
