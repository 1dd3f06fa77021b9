package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"heartline/internal/models"
	"heartline/internal/services"
	"heartline/pkg/auth"
)

type recordingResolver struct {
	got models.IdentityRequest
	err error
}

func (r *recordingResolver) Resolve(_ context.Context, req models.IdentityRequest) (models.Identity, *models.LedgerEntry, error) {
	r.got = req
	if r.err != nil {
		return models.Identity{}, nil, r.err
	}
	key := "guest:test"
	if req.UserID != "" {
		key = "user:" + req.UserID
	}
	return models.Identity{Key: key, Kind: models.KindForKey(key)}, &models.LedgerEntry{Key: key, Balance: 25}, nil
}

func newIdentityApp(jwtAuth *auth.LocalJWTAuth, resolver IdentityResolver) *fiber.App {
	app := fiber.New()
	app.Use(OptionalLocalAuthMiddleware(jwtAuth))
	app.Use(ResolveIdentity(resolver))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		identity, _ := IdentityFrom(c)
		return c.JSON(fiber.Map{"key": identity.Key, "balance": LedgerEntryFrom(c).Balance})
	})
	return app
}

func TestResolveIdentity_CollectsHeaders(t *testing.T) {
	resolver := &recordingResolver{}
	app := newIdentityApp(nil, resolver)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-Device-Fingerprint", "fp-123")
	req.Header.Set("X-Platform", "android")
	req.Header.Set("User-Agent", "HeartlineApp/1.0")
	req.Header.Set("Accept-Language", "de-DE")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	got := resolver.got
	if got.DeviceFingerprint != "fp-123" || got.Platform != models.PlatformAndroid {
		t.Errorf("Unexpected device signals %+v", got)
	}
	if got.UserAgent != "HeartlineApp/1.0" || got.AcceptLanguage != "de-DE" {
		t.Errorf("Unexpected network signals %+v", got)
	}
	if got.UserID != "" {
		t.Errorf("Expected anonymous request, got user %q", got.UserID)
	}
}

func TestResolveIdentity_AuthenticatedUser(t *testing.T) {
	jwtAuth, _ := auth.NewLocalJWTAuth("secret", time.Minute)
	token, _ := jwtAuth.GenerateAccessToken("u-9", "user")
	resolver := &recordingResolver{}
	app := newIdentityApp(jwtAuth, resolver)

	tests := []struct {
		name    string
		header  string
		query   string
		wantKey string
	}{
		{"header token", "Bearer " + token, "", "user:u-9"},
		{"query token", "", "?token=" + token, "user:u-9"},
		{"invalid token falls back to guest", "Bearer nope", "", "guest:test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/whoami"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}

			var body map[string]interface{}
			json.NewDecoder(resp.Body).Decode(&body)
			if body["key"] != tt.wantKey {
				t.Errorf("Expected key %s, got %v", tt.wantKey, body["key"])
			}
		})
	}
}

func TestResolveIdentity_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unresolvable", services.ErrIdentityUnresolvable, fiber.StatusBadRequest},
		{"store down", errors.New("redis: connection refused"), fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newIdentityApp(nil, &recordingResolver{err: tt.err})
			resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestRequireServiceToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
		status     int
	}{
		{"valid", "s3cret", "s3cret", fiber.StatusOK},
		{"wrong", "s3cret", "guess", fiber.StatusUnauthorized},
		{"missing", "s3cret", "", fiber.StatusUnauthorized},
		{"disabled", "", "anything", fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/credit", RequireServiceToken(tt.configured), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			req := httptest.NewRequest("POST", "/credit", nil)
			if tt.provided != "" {
				req.Header.Set(ServiceTokenHeader, tt.provided)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestChatRateLimiter_PerIdentity(t *testing.T) {
	app := fiber.New()
	app.Use(OptionalLocalAuthMiddleware(nil))
	app.Use(ResolveIdentity(&recordingResolver{}))
	app.Use(ChatRateLimiter(&RateLimitConfig{ChatMax: 2, ChatExpiration: time.Minute}))
	app.Post("/chat", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/chat", nil))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		statuses = append(statuses, resp.StatusCode)
	}

	if statuses[0] != 200 || statuses[1] != 200 || statuses[2] != fiber.StatusTooManyRequests {
		t.Errorf("Expected [200 200 429], got %v", statuses)
	}
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("RATE_LIMIT_SESSION", "7")
	t.Setenv("RATE_LIMIT_WEBSOCKET", "-1")

	config := LoadRateLimitConfig(12)
	if config.ChatMax != 12 {
		t.Errorf("Expected chat max 12, got %d", config.ChatMax)
	}
	if config.SessionMax != 7 {
		t.Errorf("Expected session max 7, got %d", config.SessionMax)
	}
	if config.WebSocketMax != 20 {
		t.Errorf("Expected invalid override to keep 20, got %d", config.WebSocketMax)
	}
}
