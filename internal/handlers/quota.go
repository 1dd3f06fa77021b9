package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"heartline/internal/middleware"
	"heartline/internal/models"
	"heartline/internal/services"
)

// QuotaHandler serves balance reads, explicit debits and purchase credits
type QuotaHandler struct {
	ledger   *services.QuotaLedger
	notifier services.BalanceNotifier
}

// NewQuotaHandler creates a new quota handler
func NewQuotaHandler(ledger *services.QuotaLedger, notifier services.BalanceNotifier) *QuotaHandler {
	return &QuotaHandler{ledger: ledger, notifier: notifier}
}

// Balance handles GET /api/quota
func (h *QuotaHandler) Balance(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, services.ErrIdentityUnresolvable)
	}

	balance, err := h.ledger.Peek(c.UserContext(), identity.Key)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"key": identity.Key, "balance": balance})
}

// Use handles POST /api/quota/use
func (h *QuotaHandler) Use(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return writeError(c, services.ErrIdentityUnresolvable)
	}

	var req models.QuotaAmountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request body")
	}

	remaining, err := h.ledger.Use(c.UserContext(), identity.Key, req.Amount)
	if err != nil {
		return writeError(c, err)
	}

	h.notify(identity.Key, remaining)
	return c.JSON(fiber.Map{"key": identity.Key, "balance": remaining})
}

// Credit handles POST /api/quota/credit. Only trusted services reach this handler.
func (h *QuotaHandler) Credit(c *fiber.Ctx) error {
	var req models.QuotaAmountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request body")
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		return badRequest(c, "invalid_key", "key is required")
	}

	remaining, err := h.ledger.Credit(c.UserContext(), key, req.Amount)
	if err != nil {
		return writeError(c, err)
	}

	log.Printf("💎 [QUOTA] Credited %d diamonds to %s (balance %d)", req.Amount, key, remaining)
	h.notify(key, remaining)
	return c.JSON(fiber.Map{"key": key, "balance": remaining})
}

// notify pushes the new balance to the identity's open websocket sessions
func (h *QuotaHandler) notify(key string, balance int) {
	if h.notifier == nil {
		return
	}
	h.notifier.NotifyBalance(context.Background(), key, balance)
}
