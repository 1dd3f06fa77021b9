package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"heartline/internal/models"
	"heartline/internal/services"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocketHandler runs chat over a websocket with the same pipeline as POST /api/chat
type WebSocketHandler struct {
	connManager   *services.ConnectionManager
	conversations *services.ConversationService
	metrics       *services.Metrics
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager, conversations *services.ConversationService, metrics *services.Metrics) *WebSocketHandler {
	return &WebSocketHandler{
		connManager:   connManager,
		conversations: conversations,
		metrics:       metrics,
	}
}

// Handle handles a new WebSocket connection. The identity was resolved by middleware
// during the upgrade request.
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	identity, ok := c.Locals("identity").(models.Identity)
	if !ok || identity.Key == "" {
		c.WriteJSON(models.ServerMessage{
			Type:         "error",
			ErrorCode:    "identity_unresolvable",
			ErrorMessage: "Could not identify this device",
		})
		c.Close()
		return
	}

	connID := uuid.New().String()
	done := make(chan struct{})

	userConn := &models.UserConnection{
		ConnID:    connID,
		Identity:  identity,
		Conn:      c,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.ServerMessage, 32),
	}

	h.connManager.Add(userConn)
	h.metrics.RecordWebSocketConnect()
	defer func() {
		close(done) // Signal all goroutines to stop
		h.connManager.Remove(connID)
		h.metrics.RecordWebSocketDisconnect()
	}()

	c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	go h.pingLoop(userConn, done)
	go h.writeLoop(userConn)

	userConn.SafeSend(models.ServerMessage{
		Type:    "connected",
		Content: "WebSocket connected. Ready to receive messages.",
	})

	h.readLoop(userConn)
}

// pingLoop sends periodic pings to keep the WebSocket connection alive
func (h *WebSocketHandler) pingLoop(userConn *models.UserConnection, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			userConn.Mutex.Lock()
			err := userConn.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			userConn.Mutex.Unlock()
			if err != nil {
				log.Printf("⚠️ [WS] Ping failed for %s: %v", userConn.ConnID, err)
				return
			}
		}
	}
}

// readLoop handles incoming messages from the client. Chat messages on one connection
// are processed in order.
func (h *WebSocketHandler) readLoop(userConn *models.UserConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [WS] Panic in readLoop: %v", r)
		}
	}()

	for {
		_, msg, err := userConn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("❌ [WS] Read error for %s: %v", userConn.ConnID, err)
			}
			return
		}

		userConn.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var clientMsg models.ClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			h.send(userConn, models.ServerMessage{
				Type:         "error",
				ErrorCode:    "invalid_format",
				ErrorMessage: "Invalid message format",
			})
			continue
		}
		h.metrics.RecordWebSocketMessage(clientMsg.Type, "inbound")

		switch clientMsg.Type {
		case "ping":
			h.send(userConn, models.ServerMessage{Type: "pong"})
		case "chat_message":
			h.handleChatMessage(userConn, clientMsg)
		default:
			log.Printf("⚠️  [WS] Unknown message type: %s", clientMsg.Type)
			h.send(userConn, models.ServerMessage{
				Type:         "error",
				ErrorCode:    "unknown_type",
				ErrorMessage: "Unknown message type",
			})
		}
	}
}

func (h *WebSocketHandler) handleChatMessage(userConn *models.UserConnection, msg models.ClientMessage) {
	if msg.PersonaID <= 0 {
		h.send(userConn, models.ServerMessage{
			Type:         "error",
			ErrorCode:    "invalid_persona",
			ErrorMessage: "personaId is required",
		})
		return
	}

	result, err := h.conversations.Handle(context.Background(), services.ChatInput{
		Identity:        userConn.Identity,
		PersonaID:       msg.PersonaID,
		Text:            msg.Text,
		DeclaredEmotion: msg.DeclaredEmotion,
	})
	if err != nil {
		_, code, message := classifyError(err)
		reply := models.ServerMessage{
			Type:         "error",
			PersonaID:    msg.PersonaID,
			ErrorCode:    code,
			ErrorMessage: message,
		}
		var quotaErr *services.QuotaExhaustedError
		if errors.As(err, &quotaErr) {
			remaining := quotaErr.Remaining
			reply.RemainingQuota = &remaining
		}
		h.send(userConn, reply)
		return
	}

	remaining := result.RemainingQuota
	emotion := result.Emotion
	h.send(userConn, models.ServerMessage{
		Type:           "reply",
		Content:        result.ReplyText,
		PersonaID:      msg.PersonaID,
		RemainingQuota: &remaining,
		UsedFallback:   result.UsedFallback,
		Emotion:        &emotion,
	})
}

func (h *WebSocketHandler) send(userConn *models.UserConnection, msg models.ServerMessage) {
	if !userConn.SafeSend(msg) {
		log.Printf("⚠️ [WS] Dropped %s message for %s: queue closed or full", msg.Type, userConn.ConnID)
		return
	}
	h.metrics.RecordWebSocketMessage(msg.Type, "outbound")
}

// writeLoop is the only writer of data frames on the connection
func (h *WebSocketHandler) writeLoop(userConn *models.UserConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [WS] Panic in writeLoop: %v", r)
		}
	}()

	for msg := range userConn.WriteChan {
		userConn.Mutex.Lock()
		err := userConn.Conn.WriteJSON(msg)
		userConn.Mutex.Unlock()
		if err != nil {
			log.Printf("❌ [WS] Write error for %s: %v", userConn.ConnID, err)
			// Stop queueing for a dead writer and unblock the read loop
			userConn.MarkClosed()
			userConn.Conn.Close()
			return
		}
	}
}
