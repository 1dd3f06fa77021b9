package store

import (
	"context"
	"sync"
	"time"

	"heartline/internal/models"
)

// MemorySettings is a map-backed SettingsRepository used when no SQL database is configured
type MemorySettings struct {
	mu   sync.RWMutex
	rows map[string]models.PersonaSettings
}

// NewMemorySettings creates an empty repository
func NewMemorySettings() *MemorySettings {
	return &MemorySettings{rows: make(map[string]models.PersonaSettings)}
}

// Get returns a copy of the stored settings
func (r *MemorySettings) Get(_ context.Context, identityKey string, personaID int) (*models.PersonaSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.rows[pairKey(identityKey, personaID)]
	if !ok {
		return nil, nil
	}
	return cloneSettings(s), nil
}

// Upsert stores a copy of s
func (r *MemorySettings) Upsert(_ context.Context, s *models.PersonaSettings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[pairKey(s.IdentityKey, s.PersonaID)] = *cloneSettings(*s)
	return nil
}

func cloneSettings(s models.PersonaSettings) *models.PersonaSettings {
	out := s
	out.ActiveTraits = make(map[string]int, len(s.ActiveTraits))
	for k, v := range s.ActiveTraits {
		out.ActiveTraits[k] = v
	}
	out.InterestTopics = append([]string{}, s.InterestTopics...)
	return &out
}
