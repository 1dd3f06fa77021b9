package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"heartline/internal/services"
)

// Pinger is any backend the health check can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	connManager *services.ConnectionManager
	checks      map[string]Pinger
}

// NewHealthHandler creates a new health handler probing checks on every request
func NewHealthHandler(connManager *services.ConnectionManager, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{connManager: connManager, checks: checks}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			components[name] = "unavailable"
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":      status,
		"components":  components,
		"connections": h.connManager.Count(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
