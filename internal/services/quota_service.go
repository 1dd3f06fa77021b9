package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"heartline/internal/models"
	"heartline/internal/store"
)

// PoolSource supplies the global persona id pool partitioned by gender
type PoolSource interface {
	Pool() models.PersonaPool
}

// QuotaLedger owns diamond balances. All atomicity lives in the store; this layer adds
// typed errors, the accessible persona computation and metrics.
type QuotaLedger struct {
	store     store.LedgerStore
	pool      PoolSource
	perGender int
	metrics   *Metrics
}

// NewQuotaLedger creates the ledger service
func NewQuotaLedger(s store.LedgerStore, pool PoolSource, perGender int, metrics *Metrics) *QuotaLedger {
	return &QuotaLedger{store: s, pool: pool, perGender: perGender, metrics: metrics}
}

// TryDeduct subtracts amount only if the balance covers it. ok=false leaves the balance untouched.
func (q *QuotaLedger) TryDeduct(ctx context.Context, key string, amount int) (remaining int, ok bool, err error) {
	remaining, ok, err = q.store.Deduct(ctx, key, amount)
	if err != nil {
		return 0, false, fmt.Errorf("deduct %d from %s: %w", amount, key, err)
	}
	if !ok {
		q.metrics.RecordQuotaExhausted()
	}
	return remaining, ok, nil
}

// Use is TryDeduct with insufficient balance reported as *QuotaExhaustedError
func (q *QuotaLedger) Use(ctx context.Context, key string, amount int) (int, error) {
	remaining, ok, err := q.TryDeduct(ctx, key, amount)
	if err != nil {
		return 0, err
	}
	if !ok {
		return remaining, &QuotaExhaustedError{Key: key, Requested: amount, Remaining: remaining}
	}
	return remaining, nil
}

// Credit adds amount for refunds and purchases
func (q *QuotaLedger) Credit(ctx context.Context, key string, amount int) (int, error) {
	remaining, err := q.store.Credit(ctx, key, amount)
	if err != nil {
		return 0, fmt.Errorf("credit %d to %s: %w", amount, key, err)
	}
	return remaining, nil
}

// Peek returns the balance; unknown keys read as zero without being created
func (q *QuotaLedger) Peek(ctx context.Context, key string) (int, error) {
	entry, err := q.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, nil
	}
	return entry.Balance, nil
}

// Entry returns the full ledger entry or nil
func (q *QuotaLedger) Entry(ctx context.Context, key string) (*models.LedgerEntry, error) {
	return q.store.Get(ctx, key)
}

// AccessibleIDs computes the persona ids a gender preference unlocks
func (q *QuotaLedger) AccessibleIDs(gender models.Gender) []int {
	var pool models.PersonaPool
	if q.pool != nil {
		pool = q.pool.Pool()
	}
	return pool.AccessibleIDs(gender, q.perGender)
}

// SetPreferences stores the gender filter and the recomputed accessible persona ids
func (q *QuotaLedger) SetPreferences(ctx context.Context, key string, gender models.Gender) (*models.LedgerEntry, error) {
	switch gender {
	case models.GenderMale, models.GenderFemale, models.GenderBoth:
	default:
		return nil, ErrInvalidPreference
	}

	ids := q.AccessibleIDs(gender)
	entry, err := q.store.SetPreferences(ctx, key, gender, ids)
	if errors.Is(err, store.ErrNotFound) {
		// Preferences may arrive before any deduction; create a zero entry and retry once
		if _, _, cerr := q.store.GetOrCreate(ctx, &models.LedgerEntry{
			Key:                    key,
			Kind:                   models.KindForKey(key),
			PreferredPersonaGender: models.GenderBoth,
		}); cerr != nil {
			return nil, cerr
		}
		entry, err = q.store.SetPreferences(ctx, key, gender, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("set preferences for %s: %w", key, err)
	}

	log.Printf("💎 [QUOTA] Preferences updated for %s: gender=%s accessible=%v", key, gender, ids)
	return entry, nil
}
