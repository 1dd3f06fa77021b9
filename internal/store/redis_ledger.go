package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"heartline/internal/models"
)

const (
	redisLedgerPrefix = "heartline:ledger:"
	redisSignalPrefix = "heartline:signal:"
)

// createScript writes every field of a new entry only if the hash does not exist yet.
// KEYS[1] entry hash, ARGV field/value pairs. Returns 1 when created.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// deductScript checks and decrements in one step.
// KEYS[1] entry hash, ARGV[1] amount, ARGV[2] kind for on-demand creation, ARGV[3] now (ms).
// Returns {ok, balance}.
var deductScript = redis.NewScript(`
local bal = tonumber(redis.call('HGET', KEYS[1], 'balance') or '-1')
if bal < 0 then
	redis.call('HSET', KEYS[1], 'balance', 0, 'kind', ARGV[2], 'welcomeGranted', '0',
		'preferredPersonaGender', 'both', 'createdAt', ARGV[3], 'lastActivityAt', ARGV[3])
	bal = 0
end
local amount = tonumber(ARGV[1])
if bal < amount then
	return {0, bal}
end
bal = redis.call('HINCRBY', KEYS[1], 'balance', -amount)
redis.call('HSET', KEYS[1], 'lastActivityAt', ARGV[3])
return {1, bal}
`)

// creditScript is deductScript without the balance check
var creditScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	redis.call('HSET', KEYS[1], 'balance', 0, 'kind', ARGV[2], 'welcomeGranted', '0',
		'preferredPersonaGender', 'both', 'createdAt', ARGV[3], 'lastActivityAt', ARGV[3])
end
local bal = redis.call('HINCRBY', KEYS[1], 'balance', tonumber(ARGV[1]))
redis.call('HSET', KEYS[1], 'lastActivityAt', ARGV[3])
return bal
`)

// preferencesScript updates preferences of an existing entry. Returns 0 when absent.
var preferencesScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'preferredPersonaGender', ARGV[1], 'accessiblePersonaIds', ARGV[2], 'lastActivityAt', ARGV[3])
return 1
`)

// RedisLedger stores each entry as a hash; all read-modify-write paths run as Lua scripts.
type RedisLedger struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLedger creates a ledger on top of an existing client
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client, now: time.Now}
}

func ledgerKey(key string) string { return redisLedgerPrefix + key }

// GetOrCreate inserts seed atomically when absent
func (r *RedisLedger) GetOrCreate(ctx context.Context, seed *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	now := r.now()
	entry := seed.Clone()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastActivityAt.IsZero() {
		entry.LastActivityAt = entry.CreatedAt
	}

	fields, err := encodeEntry(entry)
	if err != nil {
		return nil, false, err
	}

	created, err := createScript.Run(ctx, r.client, []string{ledgerKey(entry.Key)}, fields...).Int()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create ledger entry: %w", err)
	}

	stored, err := r.Get(ctx, entry.Key)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, ErrNotFound
	}
	return stored, created == 1, nil
}

// Get loads the entry hash
func (r *RedisLedger) Get(ctx context.Context, key string) (*models.LedgerEntry, error) {
	fields, err := r.client.HGetAll(ctx, ledgerKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeEntry(key, fields)
}

// Deduct runs the check-and-decrement script
func (r *RedisLedger) Deduct(ctx context.Context, key string, amount int) (int, bool, error) {
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}

	res, err := deductScript.Run(ctx, r.client, []string{ledgerKey(key)},
		amount, string(models.KindForKey(key)), r.now().UnixMilli()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("failed to deduct: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected deduct reply: %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}

// Credit runs the increment script
func (r *RedisLedger) Credit(ctx context.Context, key string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	bal, err := creditScript.Run(ctx, r.client, []string{ledgerKey(key)},
		amount, string(models.KindForKey(key)), r.now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to credit: %w", err)
	}
	return bal, nil
}

// SetPreferences updates an existing entry's preference fields
func (r *RedisLedger) SetPreferences(ctx context.Context, key string, gender models.Gender, accessibleIDs []int) (*models.LedgerEntry, error) {
	ids, err := json.Marshal(normalizeIDs(accessibleIDs))
	if err != nil {
		return nil, err
	}

	updated, err := preferencesScript.Run(ctx, r.client, []string{ledgerKey(key)},
		string(gender), string(ids), r.now().UnixMilli()).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}
	if updated == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, key)
}

// ClaimSignal uses SETNX so the first owner sticks
func (r *RedisLedger) ClaimSignal(ctx context.Context, signal, ownerKey string) (string, error) {
	k := redisSignalPrefix + signal
	if _, err := r.client.SetNX(ctx, k, ownerKey, 0).Result(); err != nil {
		return "", fmt.Errorf("failed to claim signal: %w", err)
	}
	owner, err := r.client.Get(ctx, k).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read signal owner: %w", err)
	}
	return owner, nil
}

// Ping checks the connection
func (r *RedisLedger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func encodeEntry(e *models.LedgerEntry) ([]interface{}, error) {
	ids, err := json.Marshal(normalizeIDs(e.AccessiblePersonaIDs))
	if err != nil {
		return nil, err
	}
	gender := e.PreferredPersonaGender
	if gender == "" {
		gender = models.GenderBoth
	}
	return []interface{}{
		"balance", e.Balance,
		"kind", string(e.Kind),
		"platform", string(e.Platform),
		"welcomeGranted", boolField(e.WelcomeGranted),
		"preferredPersonaGender", string(gender),
		"accessiblePersonaIds", string(ids),
		"createdAt", e.CreatedAt.UnixMilli(),
		"lastActivityAt", e.LastActivityAt.UnixMilli(),
	}, nil
}

func decodeEntry(key string, f map[string]string) (*models.LedgerEntry, error) {
	balance, err := strconv.Atoi(f["balance"])
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for %s: %w", key, err)
	}

	entry := &models.LedgerEntry{
		Key:                    key,
		Kind:                   models.IdentityKind(f["kind"]),
		Platform:               models.Platform(f["platform"]),
		Balance:                balance,
		WelcomeGranted:         f["welcomeGranted"] == "1",
		PreferredPersonaGender: models.Gender(f["preferredPersonaGender"]),
		CreatedAt:              msField(f["createdAt"]),
		LastActivityAt:         msField(f["lastActivityAt"]),
	}
	if raw := f["accessiblePersonaIds"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &entry.AccessiblePersonaIDs); err != nil {
			return nil, fmt.Errorf("corrupt persona ids for %s: %w", key, err)
		}
	}
	if entry.Kind == "" {
		entry.Kind = models.KindForKey(key)
	}
	return entry, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func msField(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// normalizeIDs keeps JSON output as [] rather than null
func normalizeIDs(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
