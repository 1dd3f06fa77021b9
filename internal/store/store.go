// Package store holds the persistence backends behind the quota ledger, the conversation
// memory and the per-persona settings. Every backend honours the same atomicity contract:
// deductions never overdraw, and entry creation is insert-if-absent.
package store

import (
	"context"
	"errors"
	"time"

	"heartline/internal/models"
)

var (
	// ErrInvalidAmount is returned for non-positive debit or credit amounts
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrNotFound is returned when an operation requires an existing ledger entry
	ErrNotFound = errors.New("ledger entry not found")
)

// LedgerStore owns quota balances keyed by identity key.
type LedgerStore interface {
	// GetOrCreate inserts seed if no entry exists for seed.Key and returns the stored entry.
	// created is true only for the single caller whose insert won.
	GetOrCreate(ctx context.Context, seed *models.LedgerEntry) (entry *models.LedgerEntry, created bool, err error)
	// Get returns nil, nil when the key is unknown
	Get(ctx context.Context, key string) (*models.LedgerEntry, error)
	// Deduct atomically subtracts amount if the balance covers it. Unknown keys are
	// created with zero balance, so they fail without error.
	Deduct(ctx context.Context, key string, amount int) (remaining int, ok bool, err error)
	// Credit adds amount, creating a zero-balance entry first if needed
	Credit(ctx context.Context, key string, amount int) (remaining int, err error)
	SetPreferences(ctx context.Context, key string, gender models.Gender, accessibleIDs []int) (*models.LedgerEntry, error)
	// ClaimSignal records ownerKey as the owner of a device signal unless another key
	// already holds it, and returns whichever key owns it afterwards.
	ClaimSignal(ctx context.Context, signal, ownerKey string) (owner string, err error)
	Ping(ctx context.Context) error
}

// MemoryStore keeps conversation turns per (identity key, persona id).
type MemoryStore interface {
	// Append stores turns in order, assigning increasing sequence numbers
	Append(ctx context.Context, turns ...models.ConversationTurn) error
	// Recall returns at most limit of the most recent turns, oldest first
	Recall(ctx context.Context, identityKey string, personaID int, limit int) ([]models.ConversationTurn, error)
	// Clear deletes every turn for the pair and reports how many were removed
	Clear(ctx context.Context, identityKey string, personaID int) (int64, error)
}

// SettingsRepository persists per (identity key, persona id) personality settings.
type SettingsRepository interface {
	// Get returns nil, nil when the identity never customised the persona
	Get(ctx context.Context, identityKey string, personaID int) (*models.PersonaSettings, error)
	Upsert(ctx context.Context, settings *models.PersonaSettings) error
}

// zeroEntry is the record created on demand by Deduct and Credit for unknown keys
func zeroEntry(key string, now time.Time) *models.LedgerEntry {
	return &models.LedgerEntry{
		Key:                    key,
		Kind:                   models.KindForKey(key),
		Balance:                0,
		PreferredPersonaGender: models.GenderBoth,
		CreatedAt:              now,
		LastActivityAt:         now,
	}
}
