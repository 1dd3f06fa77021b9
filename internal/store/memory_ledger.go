package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"heartline/internal/models"
)

const ledgerShards = 32

type ledgerShard struct {
	mu      sync.Mutex
	entries map[string]*models.LedgerEntry
}

// MemoryLedger is a process-local LedgerStore. Keys are spread over fixed shards so
// unrelated keys rarely contend; every operation on one key runs under its shard lock.
type MemoryLedger struct {
	shards [ledgerShards]ledgerShard

	claimsMu sync.Mutex
	claims   map[string]string

	now func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	l := &MemoryLedger{
		claims: make(map[string]string),
		now:    time.Now,
	}
	for i := range l.shards {
		l.shards[i].entries = make(map[string]*models.LedgerEntry)
	}
	return l
}

func (l *MemoryLedger) shard(key string) *ledgerShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.shards[h.Sum32()%ledgerShards]
}

// GetOrCreate inserts seed when the key is absent
func (l *MemoryLedger) GetOrCreate(_ context.Context, seed *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	s := l.shard(seed.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[seed.Key]; ok {
		return existing.Clone(), false, nil
	}

	entry := seed.Clone()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}
	if entry.LastActivityAt.IsZero() {
		entry.LastActivityAt = entry.CreatedAt
	}
	s.entries[entry.Key] = entry
	return entry.Clone(), true, nil
}

// Get returns a copy of the entry or nil
func (l *MemoryLedger) Get(_ context.Context, key string) (*models.LedgerEntry, error) {
	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.entries[key].Clone(), nil
}

// Deduct subtracts amount when the balance covers it
func (l *MemoryLedger) Deduct(_ context.Context, key string, amount int) (int, bool, error) {
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}

	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := l.ensure(s, key)
	if entry.Balance < amount {
		return entry.Balance, false, nil
	}
	entry.Balance -= amount
	entry.LastActivityAt = l.now()
	return entry.Balance, true, nil
}

// Credit adds amount to the balance
func (l *MemoryLedger) Credit(_ context.Context, key string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := l.ensure(s, key)
	entry.Balance += amount
	entry.LastActivityAt = l.now()
	return entry.Balance, nil
}

// SetPreferences replaces the gender preference and accessible persona ids
func (l *MemoryLedger) SetPreferences(_ context.Context, key string, gender models.Gender, accessibleIDs []int) (*models.LedgerEntry, error) {
	s := l.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	entry.PreferredPersonaGender = gender
	entry.AccessiblePersonaIDs = append([]int(nil), accessibleIDs...)
	entry.LastActivityAt = l.now()
	return entry.Clone(), nil
}

// ClaimSignal keeps the first owner of a signal
func (l *MemoryLedger) ClaimSignal(_ context.Context, signal, ownerKey string) (string, error) {
	l.claimsMu.Lock()
	defer l.claimsMu.Unlock()

	if owner, ok := l.claims[signal]; ok {
		return owner, nil
	}
	l.claims[signal] = ownerKey
	return ownerKey, nil
}

// Ping always succeeds
func (l *MemoryLedger) Ping(context.Context) error { return nil }

// ensure must be called with the shard lock held
func (l *MemoryLedger) ensure(s *ledgerShard, key string) *models.LedgerEntry {
	entry, ok := s.entries[key]
	if !ok {
		entry = zeroEntry(key, l.now())
		s.entries[key] = entry
	}
	return entry
}
