package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"heartline/internal/database"
	"heartline/internal/models"
)

// SQLSettings persists persona settings in the persona_settings table. Statements avoid
// dialect-specific upsert syntax so the same code runs on MySQL and SQLite.
type SQLSettings struct {
	db *database.DB
}

// NewSQLSettings creates the repository; the schema must already be initialized
func NewSQLSettings(db *database.DB) *SQLSettings {
	return &SQLSettings{db: db}
}

// Get loads settings for the pair, nil when none were saved
func (r *SQLSettings) Get(ctx context.Context, identityKey string, personaID int) (*models.PersonaSettings, error) {
	var (
		traits, topics string
		updatedAt      int64
		s              = models.PersonaSettings{IdentityKey: identityKey, PersonaID: personaID}
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT active_traits, relationship_label, conversation_style,
		       emotional_expressiveness, interest_topics, updated_at
		FROM persona_settings
		WHERE identity_key = ? AND persona_id = ?
	`, identityKey, personaID).Scan(
		&traits, &s.RelationshipLabel, &s.ConversationStyle,
		&s.EmotionalExpressiveness, &topics, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load persona settings: %w", err)
	}

	if err := json.Unmarshal([]byte(traits), &s.ActiveTraits); err != nil {
		return nil, fmt.Errorf("corrupt active_traits: %w", err)
	}
	if err := json.Unmarshal([]byte(topics), &s.InterestTopics); err != nil {
		return nil, fmt.Errorf("corrupt interest_topics: %w", err)
	}
	s.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &s, nil
}

// Upsert replaces the pair's row inside one transaction
func (r *SQLSettings) Upsert(ctx context.Context, s *models.PersonaSettings) error {
	traits, err := json.Marshal(nonNilTraits(s.ActiveTraits))
	if err != nil {
		return err
	}
	topics := s.InterestTopics
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM persona_settings WHERE identity_key = ? AND persona_id = ?`,
		s.IdentityKey, s.PersonaID); err != nil {
		return fmt.Errorf("failed to replace persona settings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO persona_settings (identity_key, persona_id, active_traits, relationship_label,
			conversation_style, emotional_expressiveness, interest_topics, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.IdentityKey, s.PersonaID, string(traits), s.RelationshipLabel,
		s.ConversationStyle, s.EmotionalExpressiveness, string(topicsJSON), s.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to save persona settings: %w", err)
	}

	return tx.Commit()
}

func nonNilTraits(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
