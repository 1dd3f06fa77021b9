package store

import (
	"context"
	"fmt"
	"sync"

	"heartline/internal/models"
)

type turnLog struct {
	mu    sync.Mutex
	seq   int64
	turns []models.ConversationTurn
}

// MemoryTurns is a process-local MemoryStore with one log per (identity key, persona id)
type MemoryTurns struct {
	logs sync.Map // pairKey -> *turnLog
}

// NewMemoryTurns creates an empty turn store
func NewMemoryTurns() *MemoryTurns {
	return &MemoryTurns{}
}

func pairKey(identityKey string, personaID int) string {
	return fmt.Sprintf("%s|%d", identityKey, personaID)
}

func (m *MemoryTurns) log(identityKey string, personaID int) *turnLog {
	l, _ := m.logs.LoadOrStore(pairKey(identityKey, personaID), &turnLog{})
	return l.(*turnLog)
}

// Append stores turns in the given order
func (m *MemoryTurns) Append(_ context.Context, turns ...models.ConversationTurn) error {
	for _, t := range turns {
		l := m.log(t.IdentityKey, t.PersonaID)
		l.mu.Lock()
		l.seq++
		t.Sequence = l.seq
		l.turns = append(l.turns, t)
		l.mu.Unlock()
	}
	return nil
}

// Recall returns the last limit turns, oldest first
func (m *MemoryTurns) Recall(_ context.Context, identityKey string, personaID int, limit int) ([]models.ConversationTurn, error) {
	v, ok := m.logs.Load(pairKey(identityKey, personaID))
	if !ok || limit <= 0 {
		return []models.ConversationTurn{}, nil
	}
	l := v.(*turnLog)
	l.mu.Lock()
	defer l.mu.Unlock()

	start := len(l.turns) - limit
	if start < 0 {
		start = 0
	}
	out := make([]models.ConversationTurn, len(l.turns)-start)
	copy(out, l.turns[start:])
	return out, nil
}

// Clear drops the pair's turns. Sequence numbers keep increasing afterwards.
func (m *MemoryTurns) Clear(_ context.Context, identityKey string, personaID int) (int64, error) {
	v, ok := m.logs.Load(pairKey(identityKey, personaID))
	if !ok {
		return 0, nil
	}
	l := v.(*turnLog)
	l.mu.Lock()
	defer l.mu.Unlock()

	n := int64(len(l.turns))
	l.turns = nil
	return n, nil
}
