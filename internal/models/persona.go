package models

import "time"

// Persona tiers
const (
	PersonaTierFree    = "free"
	PersonaTierPremium = "premium"
)

// Persona is a configured chat character. Persona CRUD lives outside this service;
// the catalogue is loaded read-only from personas.yaml.
type Persona struct {
	ID          int            `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Gender      Gender         `yaml:"gender" json:"gender"`
	Tier        string         `yaml:"tier" json:"tier"`
	Personality string         `yaml:"personality" json:"personality"` // base personality tag, e.g. "sweet", "playful"
	Description string         `yaml:"description" json:"description"`
	BaseTraits  map[string]int `yaml:"traits" json:"traits"`
	Interests   []string       `yaml:"interests" json:"interests,omitempty"`
}

// PersonaCatalogue is the on-disk persona file format
type PersonaCatalogue struct {
	Personas []Persona `yaml:"personas"`
}

// Pool partitions catalogue persona ids by gender, preserving file order
func (c *PersonaCatalogue) Pool() PersonaPool {
	var pool PersonaPool
	for _, p := range c.Personas {
		switch p.Gender {
		case GenderMale:
			pool.Male = append(pool.Male, p.ID)
		case GenderFemale:
			pool.Female = append(pool.Female, p.ID)
		}
	}
	return pool
}

// PersonaSettings is the per (identity key, persona) relationship configuration.
// Only the owning identity may change it.
type PersonaSettings struct {
	IdentityKey             string         `json:"-"`
	PersonaID               int            `json:"persona_id"`
	ActiveTraits            map[string]int `json:"active_traits"`
	RelationshipLabel       string         `json:"relationship_label"`
	ConversationStyle       string         `json:"conversation_style"`
	EmotionalExpressiveness int            `json:"emotional_expressiveness"`
	InterestTopics          []string       `json:"interest_topics"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// DefaultPersonaSettings is used when an identity has never customised a persona
func DefaultPersonaSettings(identityKey string, personaID int) *PersonaSettings {
	return &PersonaSettings{
		IdentityKey:             identityKey,
		PersonaID:               personaID,
		ActiveTraits:            map[string]int{},
		RelationshipLabel:       "default-romantic",
		ConversationStyle:       "balanced",
		EmotionalExpressiveness: 50,
		InterestTopics:          []string{},
	}
}

// UpdatePersonaSettingsRequest is the body of PUT /api/personas/:personaId/settings
type UpdatePersonaSettingsRequest struct {
	ActiveTraits            map[string]int `json:"active_traits"`
	RelationshipLabel       *string        `json:"relationship_label,omitempty"`
	ConversationStyle       *string        `json:"conversation_style,omitempty"`
	EmotionalExpressiveness *int           `json:"emotional_expressiveness,omitempty"`
	InterestTopics          []string       `json:"interest_topics,omitempty"`
}
