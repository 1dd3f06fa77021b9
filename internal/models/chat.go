package models

// ChatRequest is the body of POST /api/chat. Identity comes from request metadata, never the body.
type ChatRequest struct {
	Text            string           `json:"text"`
	PersonaID       int              `json:"personaId"`
	DeclaredEmotion *DeclaredEmotion `json:"declaredEmotion,omitempty"`
}

// GuestUser is echoed back to anonymous callers so clients can display their key
type GuestUser struct {
	Key string `json:"key"`
}

// ChatResponse is the reply to a chat message
type ChatResponse struct {
	ReplyText      string         `json:"replyText"`
	RemainingQuota int            `json:"remainingQuota"`
	UsedFallback   bool           `json:"usedFallback"`
	Emotion        *EmotionResult `json:"emotion,omitempty"`
	GuestUser      *GuestUser     `json:"guestUser,omitempty"`
}

// ErrorResponse is the JSON error body returned by every handler
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}
