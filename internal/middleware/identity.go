package middleware

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"heartline/internal/models"
	"heartline/internal/services"
)

const (
	localsIdentity    = "identity"
	localsLedgerEntry = "ledger_entry"
)

// IdentityResolver is the part of services.IdentityResolver the middleware needs
type IdentityResolver interface {
	Resolve(ctx context.Context, req models.IdentityRequest) (models.Identity, *models.LedgerEntry, error)
}

// RequestIdentity collects the identity signals of a request. The body is never read.
func RequestIdentity(c *fiber.Ctx) models.IdentityRequest {
	return models.IdentityRequest{
		UserID:            UserID(c),
		DeviceFingerprint: c.Get("X-Device-Fingerprint"),
		Platform:          models.ParsePlatform(c.Get("X-Platform")),
		IP:                c.IP(),
		UserAgent:         c.Get(fiber.HeaderUserAgent),
		AcceptLanguage:    c.Get(fiber.HeaderAcceptLanguage),
	}
}

// ResolveIdentity resolves the caller to a ledger key before the handler runs.
// Must be mounted after OptionalLocalAuthMiddleware.
func ResolveIdentity(resolver IdentityResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, entry, err := resolver.Resolve(c.UserContext(), RequestIdentity(c))
		if err != nil {
			if errors.Is(err, services.ErrIdentityUnresolvable) {
				return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
					Error:     "Could not identify this device",
					ErrorCode: "identity_unresolvable",
				})
			}
			log.Printf("❌ [IDENTITY] Resolution failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error:     "Identity service unavailable",
				ErrorCode: "identity_unavailable",
			})
		}

		c.Locals(localsIdentity, identity)
		c.Locals(localsLedgerEntry, entry)
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by ResolveIdentity
func IdentityFrom(c *fiber.Ctx) (models.Identity, bool) {
	identity, ok := c.Locals(localsIdentity).(models.Identity)
	return identity, ok
}

// LedgerEntryFrom returns the ledger entry loaded during resolution
func LedgerEntryFrom(c *fiber.Ctx) *models.LedgerEntry {
	entry, _ := c.Locals(localsLedgerEntry).(*models.LedgerEntry)
	return entry
}
