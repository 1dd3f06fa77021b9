package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"heartline/internal/emotion"
	"heartline/internal/middleware"
	"heartline/internal/models"
	"heartline/internal/personality"
	"heartline/internal/services"
	"heartline/internal/store"
	"heartline/pkg/auth"
)

const handlerCatalogue = `
personas:
  - id: 1
    name: Mia
    gender: female
    personality: sweet
  - id: 2
    name: Kai
    gender: male
    personality: confident
`

const testServiceToken = "fulfillment-secret"

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Generate(context.Context, services.GenerationRequest) (string, error) {
	return g.reply, g.err
}

type testServer struct {
	app         *fiber.App
	ledger      *services.QuotaLedger
	generator   *stubGenerator
	jwtAuth     *auth.LocalJWTAuth
	connManager *services.ConnectionManager
}

func setupTestApp(t *testing.T) *testServer {
	t.Helper()

	connManager := services.NewConnectionManager()
	metrics := services.InitMetrics(prometheus.NewRegistry(), connManager)

	personas := services.NewPersonaService(store.NewMemorySettings())
	if err := personas.LoadCatalogue([]byte(handlerCatalogue)); err != nil {
		t.Fatalf("Failed to load catalogue: %v", err)
	}

	ledgerStore := store.NewMemoryLedger()
	ledger := services.NewQuotaLedger(ledgerStore, personas, 3, metrics)
	resolver := services.NewIdentityResolver(ledgerStore, ledger, 25, metrics)
	generator := &stubGenerator{reply: "Hey there!"}
	conversations := services.NewConversationService(
		ledger, personas, emotion.NewAnalyzer(), personality.NewBuilder(personality.Options{}),
		store.NewMemoryTurns(), generator, metrics, services.ConversationConfig{GenerationTimeout: time.Second},
	)

	jwtAuth, err := auth.NewLocalJWTAuth("handler-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create JWT auth: %v", err)
	}

	app := fiber.New()
	health := NewHealthHandler(connManager, map[string]Pinger{"ledger": ledgerStore})
	app.Get("/health", health.Handle)

	api := app.Group("/api", middleware.OptionalLocalAuthMiddleware(jwtAuth))
	api.Post("/quota/credit", middleware.RequireServiceToken(testServiceToken), NewQuotaHandler(ledger, services.NewLocalNotifier(connManager)).Credit)

	identified := api.Group("", middleware.ResolveIdentity(resolver))
	registerIdentifiedRoutes(identified, conversations, ledger, personas, connManager)

	return &testServer{app: app, ledger: ledger, generator: generator, jwtAuth: jwtAuth, connManager: connManager}
}

func registerIdentifiedRoutes(r fiber.Router, conversations *services.ConversationService, ledger *services.QuotaLedger, personas *services.PersonaService, connManager *services.ConnectionManager) {
	chat := NewChatHandler(conversations)
	session := NewSessionHandler(ledger)
	quota := NewQuotaHandler(ledger, services.NewLocalNotifier(connManager))
	persona := NewPersonaHandler(personas)

	r.Post("/session", session.GetOrCreate)
	r.Put("/session/preferences", session.UpdatePreferences)
	r.Get("/quota", quota.Balance)
	r.Post("/quota/use", quota.Use)
	r.Post("/chat", chat.SendMessage)
	r.Delete("/chat/:personaId/history", chat.ClearHistory)
	r.Get("/personas", persona.List)
	r.Get("/personas/:personaId/settings", persona.GetSettings)
	r.Put("/personas/:personaId/settings", persona.UpdateSettings)
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	req.Header.Set("Accept-Language", "en")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("Failed to decode %s: %v", raw, err)
		}
	}
	return resp, decoded
}

func device(fp string) map[string]string {
	return map[string]string{"X-Device-Fingerprint": fp, "X-Platform": "web"}
}

func TestHealthHandler(t *testing.T) {
	s := setupTestApp(t)

	resp, body := s.do(t, "GET", "/health", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", body["status"])
	}
	components, _ := body["components"].(map[string]interface{})
	if components["ledger"] != "ok" {
		t.Errorf("Expected ledger ok, got %v", components)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealthHandler_Degraded(t *testing.T) {
	app := fiber.New()
	app.Get("/health", NewHealthHandler(services.NewConnectionManager(), map[string]Pinger{"mongo": downPinger{}}).Handle)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}

func TestSession_GetOrCreate(t *testing.T) {
	s := setupTestApp(t)

	resp, body := s.do(t, "POST", "/api/session", "", device("fp-session"))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("Expected 201 for a new session, got %d", resp.StatusCode)
	}
	if body["key"] != "device:fp-session" || body["balance"] != float64(25) || body["welcome_granted"] != true {
		t.Errorf("Unexpected session body %v", body)
	}

	resp, body = s.do(t, "POST", "/api/session", "", device("fp-session"))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200 for an existing session, got %d", resp.StatusCode)
	}
	if body["is_new"] != false || body["balance"] != float64(25) {
		t.Errorf("Expected the same entry, got %v", body)
	}
}

func TestSession_UpdatePreferences(t *testing.T) {
	s := setupTestApp(t)

	resp, body := s.do(t, "PUT", "/api/session/preferences", `{"gender":"male"}`, device("fp-prefs"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	ids, _ := body["accessible_persona_ids"].([]interface{})
	if len(ids) != 1 || ids[0] != float64(2) {
		t.Errorf("Expected only the male persona, got %v", body["accessible_persona_ids"])
	}

	resp, body = s.do(t, "PUT", "/api/session/preferences", `{"gender":"any"}`, device("fp-prefs"))
	if resp.StatusCode != fiber.StatusBadRequest || body["error_code"] != "invalid_preference" {
		t.Errorf("Expected 400 invalid_preference, got %d %v", resp.StatusCode, body)
	}
}

func TestChat_GuestFlow(t *testing.T) {
	s := setupTestApp(t)

	resp, body := s.do(t, "POST", "/api/chat", `{"text":"hi there","personaId":1}`, device("fp-chat"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["replyText"] != "Hey there!" || body["remainingQuota"] != float64(24) || body["usedFallback"] != false {
		t.Errorf("Unexpected chat body %v", body)
	}
	guest, _ := body["guestUser"].(map[string]interface{})
	if guest["key"] != "device:fp-chat" {
		t.Errorf("Expected guestUser echo for an anonymous caller, got %v", body["guestUser"])
	}
}

func TestChat_FallbackOnBackendFailure(t *testing.T) {
	s := setupTestApp(t)
	s.generator.err = errors.New("upstream 500")

	resp, body := s.do(t, "POST", "/api/chat", `{"text":"hi","personaId":2}`, device("fp-fail"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Backend failures must still return 200, got %d", resp.StatusCode)
	}
	if body["usedFallback"] != true || body["remainingQuota"] != float64(25) {
		t.Errorf("Expected refunded fallback, got %v", body)
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	s := setupTestApp(t)
	if _, _, err := s.ledger.TryDeduct(context.Background(), "device:fp-broke", 1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{"quota exhausted", `{"text":"hi","personaId":1}`, device("fp-broke"), fiber.StatusPaymentRequired, "quota_exhausted"},
		{"persona not found", `{"text":"hi","personaId":99}`, device("fp-missing"), fiber.StatusNotFound, "persona_not_found"},
		{"empty text", `{"text":"  ","personaId":1}`, device("fp-empty"), fiber.StatusBadRequest, "invalid_message"},
		{"missing persona", `{"text":"hi"}`, device("fp-nopersona"), fiber.StatusBadRequest, "invalid_persona"},
		{"bad body", `{`, device("fp-bad"), fiber.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, "POST", "/api/chat", tt.body, tt.headers)
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
			if body["error_code"] != tt.code {
				t.Errorf("Expected error_code %s, got %v", tt.code, body["error_code"])
			}
		})
	}

	_, body := s.do(t, "POST", "/api/chat", `{"text":"hi","personaId":1}`, device("fp-broke"))
	if body["remaining"] != float64(0) {
		t.Errorf("Expected remaining 0 on a 402, got %v", body["remaining"])
	}
}

func TestQuota_UseAndBalance(t *testing.T) {
	s := setupTestApp(t)
	headers := device("fp-quota")

	resp, body := s.do(t, "POST", "/api/quota/use", `{"amount":5}`, headers)
	if resp.StatusCode != fiber.StatusOK || body["balance"] != float64(20) {
		t.Fatalf("Expected balance 20, got %d %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/api/quota/use", `{"amount":50}`, headers)
	if resp.StatusCode != fiber.StatusPaymentRequired || body["remaining"] != float64(20) {
		t.Errorf("Expected 402 with remaining 20, got %d %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, "POST", "/api/quota/use", `{"amount":0}`, headers)
	if resp.StatusCode != fiber.StatusBadRequest || body["error_code"] != "invalid_amount" {
		t.Errorf("Expected 400 invalid_amount, got %d %v", resp.StatusCode, body)
	}

	_, body = s.do(t, "GET", "/api/quota", "", headers)
	if body["balance"] != float64(20) {
		t.Errorf("Expected balance 20, got %v", body["balance"])
	}
}

func TestQuota_Credit(t *testing.T) {
	s := setupTestApp(t)

	resp, _ := s.do(t, "POST", "/api/quota/credit", `{"key":"device:fp-buyer","amount":100}`, nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 without a service token, got %d", resp.StatusCode)
	}

	resp, body := s.do(t, "POST", "/api/quota/credit", `{"key":"device:fp-buyer","amount":100}`,
		map[string]string{middleware.ServiceTokenHeader: testServiceToken})
	if resp.StatusCode != fiber.StatusOK || body["balance"] != float64(100) {
		t.Fatalf("Expected balance 100, got %d %v", resp.StatusCode, body)
	}

	// The buyer's device resolves to the credited entry without a second welcome
	_, body = s.do(t, "GET", "/api/quota", "", device("fp-buyer"))
	if body["balance"] != float64(100) {
		t.Errorf("Expected the purchase to be visible on the device key, got %v", body["balance"])
	}

	resp, body = s.do(t, "POST", "/api/quota/credit", `{"amount":10}`,
		map[string]string{middleware.ServiceTokenHeader: testServiceToken})
	if resp.StatusCode != fiber.StatusBadRequest || body["error_code"] != "invalid_key" {
		t.Errorf("Expected 400 invalid_key, got %d %v", resp.StatusCode, body)
	}
}

func TestChat_RegisteredHistory(t *testing.T) {
	s := setupTestApp(t)
	token, _ := s.jwtAuth.GenerateAccessToken("u-100", "user")
	registered := map[string]string{"Authorization": "Bearer " + token}

	resp, body := s.do(t, "POST", "/api/chat", `{"text":"remember me","personaId":1}`, registered)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	if _, ok := body["guestUser"]; ok {
		t.Error("Registered callers should not get a guestUser echo")
	}

	resp, body = s.do(t, "DELETE", "/api/chat/1/history", "", registered)
	if resp.StatusCode != fiber.StatusOK || body["deleted"] != float64(2) {
		t.Errorf("Expected 2 deleted turns, got %d %v", resp.StatusCode, body)
	}

	resp, _ = s.do(t, "DELETE", "/api/chat/1/history", "", device("fp-guest"))
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("Expected 403 for a guest, got %d", resp.StatusCode)
	}
}

func TestPersonaSettings(t *testing.T) {
	s := setupTestApp(t)
	headers := device("fp-settings")

	resp, body := s.do(t, "GET", "/api/personas/1/settings", "", headers)
	if resp.StatusCode != fiber.StatusOK || body["relationship_label"] != "default-romantic" {
		t.Fatalf("Expected default settings, got %d %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, "PUT", "/api/personas/1/settings", `{"relationship_label":"best-friend","active_traits":{"humor":90}}`, headers)
	if resp.StatusCode != fiber.StatusOK || body["relationship_label"] != "best-friend" {
		t.Fatalf("Expected updated settings, got %d %v", resp.StatusCode, body)
	}

	_, body = s.do(t, "GET", "/api/personas/1/settings", "", device("fp-other"))
	if body["relationship_label"] != "default-romantic" {
		t.Errorf("Another identity must not see these settings, got %v", body["relationship_label"])
	}

	resp, _ = s.do(t, "GET", "/api/personas/99/settings", "", headers)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	resp, _ = s.do(t, "GET", "/api/personas/abc/settings", "", headers)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestPersonas_List(t *testing.T) {
	s := setupTestApp(t)

	resp, body := s.do(t, "GET", "/api/personas", "", device("fp-list"))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	personas, _ := body["personas"].([]interface{})
	if len(personas) != 2 {
		t.Errorf("Expected 2 personas, got %v", body["personas"])
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&services.QuotaExhaustedError{Remaining: 0, Requested: 1}, fiber.StatusPaymentRequired},
		{services.ErrIdentityUnresolvable, fiber.StatusBadRequest},
		{services.ErrPersonaNotFound, fiber.StatusNotFound},
		{services.ErrInvalidAmount, fiber.StatusBadRequest},
		{errors.New("mongo timeout"), fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if status, _, _ := classifyError(tt.err); status != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, status)
			}
		})
	}
}

func TestQuotaHandler_NotifiesOpenConnections(t *testing.T) {
	connManager := services.NewConnectionManager()
	conn := &models.UserConnection{
		ConnID:    "c1",
		Identity:  models.Identity{Key: "device:fp-live"},
		WriteChan: make(chan models.ServerMessage, 1),
	}
	connManager.Add(conn)

	h := NewQuotaHandler(nil, services.NewLocalNotifier(connManager))
	h.notify("device:fp-live", 42)

	select {
	case msg := <-conn.WriteChan:
		if msg.Type != "quota_update" || msg.RemainingQuota == nil || *msg.RemainingQuota != 42 {
			t.Errorf("Unexpected message %+v", msg)
		}
	default:
		t.Error("Expected a quota_update message")
	}
}
