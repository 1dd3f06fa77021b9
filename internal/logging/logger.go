package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithIdentity returns a logger carrying the resolved identity.
// Use this for all logging within one chat request; never attach message text.
func WithIdentity(identityKey, kind string) *slog.Logger {
	return slog.With(
		"identity_key", identityKey,
		"identity_kind", kind,
	)
}

// WithRequest returns a logger scoped to one chat request for a persona.
func WithRequest(logger *slog.Logger, requestID string, personaID int) *slog.Logger {
	return logger.With(
		"request_id", requestID,
		"persona_id", personaID,
	)
}
