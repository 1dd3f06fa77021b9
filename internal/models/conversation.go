package models

import (
	"time"
)

// Speaker identifies who produced a conversation turn
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// ConversationTurn is one stored message. Turns are immutable once stored and are
// keyed by (identity key, persona id, sequence) in the memory store.
type ConversationTurn struct {
	ID          string         `bson:"turnId" json:"id"`
	IdentityKey string         `bson:"identityKey" json:"-"`
	PersonaID   int            `bson:"personaId" json:"persona_id"`
	Sequence    int64          `bson:"sequence" json:"sequence"`
	Speaker     Speaker        `bson:"speaker" json:"speaker"`
	Text        string         `bson:"text" json:"text"`
	Emotion     *EmotionResult `bson:"emotion,omitempty" json:"emotion,omitempty"`
	Timestamp   time.Time      `bson:"timestamp" json:"timestamp"`
}
