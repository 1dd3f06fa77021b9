package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// ClientMessage represents a message from the websocket client
type ClientMessage struct {
	Type            string           `json:"type"` // "chat_message", "ping"
	Text            string           `json:"text,omitempty"`
	PersonaID       int              `json:"personaId,omitempty"`
	DeclaredEmotion *DeclaredEmotion `json:"declaredEmotion,omitempty"`
}

// ServerMessage represents a message sent to the websocket client
type ServerMessage struct {
	Type           string         `json:"type"` // "connected", "reply", "pong", "error"
	Content        string         `json:"content,omitempty"`
	PersonaID      int            `json:"personaId,omitempty"`
	RemainingQuota *int           `json:"remainingQuota,omitempty"`
	UsedFallback   bool           `json:"usedFallback,omitempty"`
	Emotion        *EmotionResult `json:"emotion,omitempty"`
	ErrorCode      string         `json:"code,omitempty"`
	ErrorMessage   string         `json:"message,omitempty"`
}

// UserConnection is one live websocket session bound to a resolved identity
type UserConnection struct {
	ConnID    string
	Identity  Identity
	Conn      *websocket.Conn
	CreatedAt time.Time
	WriteChan chan ServerMessage
	Mutex     sync.Mutex
	closed    bool
}

// SafeSend queues a message without blocking. It returns false when the connection is
// closed or its queue is full, in which case the message is dropped.
func (uc *UserConnection) SafeSend(msg ServerMessage) (sent bool) {
	uc.Mutex.Lock()
	if uc.closed {
		uc.Mutex.Unlock()
		return false
	}
	uc.Mutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			uc.Mutex.Lock()
			uc.closed = true
			uc.Mutex.Unlock()
			sent = false
		}
	}()

	select {
	case uc.WriteChan <- msg:
		return true
	default:
		return false
	}
}

// MarkClosed marks the connection as closed
func (uc *UserConnection) MarkClosed() {
	uc.Mutex.Lock()
	uc.closed = true
	uc.Mutex.Unlock()
}
