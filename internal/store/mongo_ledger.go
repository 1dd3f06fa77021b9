package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"heartline/internal/database"
	"heartline/internal/models"
)

// MongoLedger keeps entries in ledger_entries keyed by _id. Deductions are a single
// conditional $inc so the balance filter and the decrement are one atomic write.
type MongoLedger struct {
	db  *database.MongoDB
	now func() time.Time
}

// NewMongoLedger creates a ledger backed by MongoDB
func NewMongoLedger(db *database.MongoDB) *MongoLedger {
	return &MongoLedger{db: db, now: time.Now}
}

func (m *MongoLedger) entries() *mongo.Collection {
	return m.db.Collection(database.CollectionLedgerEntries)
}

func (m *MongoLedger) claims() *mongo.Collection {
	return m.db.Collection(database.CollectionSignalClaims)
}

// insertFields is the $setOnInsert document for a new entry, excluding _id
func insertFields(e *models.LedgerEntry, withBalance bool) bson.M {
	gender := e.PreferredPersonaGender
	if gender == "" {
		gender = models.GenderBoth
	}
	doc := bson.M{
		"kind":                   e.Kind,
		"platform":               e.Platform,
		"welcomeGranted":         e.WelcomeGranted,
		"preferredPersonaGender": gender,
		"accessiblePersonaIds":   normalizeIDs(e.AccessiblePersonaIDs),
		"createdAt":              e.CreatedAt,
	}
	if withBalance {
		doc["balance"] = e.Balance
		doc["lastActivityAt"] = e.LastActivityAt
	}
	return doc
}

// GetOrCreate upserts with $setOnInsert so only the first writer creates the entry
func (m *MongoLedger) GetOrCreate(ctx context.Context, seed *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	entry := seed.Clone()
	now := m.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastActivityAt.IsZero() {
		entry.LastActivityAt = entry.CreatedAt
	}

	res, err := m.entries().UpdateOne(ctx,
		bson.M{"_id": entry.Key},
		bson.M{"$setOnInsert": insertFields(entry, true)},
		options.Update().SetUpsert(true),
	)
	created := false
	switch {
	case err == nil:
		created = res.UpsertedCount == 1
	case mongo.IsDuplicateKeyError(err):
		// Lost a concurrent upsert race; the winner's entry stands
	default:
		return nil, false, fmt.Errorf("failed to create ledger entry: %w", err)
	}

	stored, err := m.Get(ctx, entry.Key)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, ErrNotFound
	}
	return stored, created, nil
}

// Get returns nil when the entry does not exist
func (m *MongoLedger) Get(ctx context.Context, key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := m.entries().FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entry: %w", err)
	}
	return &entry, nil
}

// Deduct decrements only when balance >= amount
func (m *MongoLedger) Deduct(ctx context.Context, key string, amount int) (int, bool, error) {
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}

	var entry models.LedgerEntry
	err := m.entries().FindOneAndUpdate(ctx,
		bson.M{"_id": key, "balance": bson.M{"$gte": amount}},
		bson.M{
			"$inc": bson.M{"balance": -amount},
			"$set": bson.M{"lastActivityAt": m.now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&entry)
	if err == nil {
		return entry.Balance, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, fmt.Errorf("failed to deduct: %w", err)
	}

	// Either the key is unknown or the balance is short; make sure the entry exists and report it
	current, _, err := m.GetOrCreate(ctx, zeroEntry(key, m.now()))
	if err != nil {
		return 0, false, err
	}
	return current.Balance, false, nil
}

// Credit increments the balance, upserting a zero entry first when needed
func (m *MongoLedger) Credit(ctx context.Context, key string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	now := m.now()
	var entry models.LedgerEntry
	err := m.entries().FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{
			"$inc":         bson.M{"balance": amount},
			"$set":         bson.M{"lastActivityAt": now},
			"$setOnInsert": insertFields(zeroEntry(key, now), false),
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&entry)
	if err != nil {
		return 0, fmt.Errorf("failed to credit: %w", err)
	}
	return entry.Balance, nil
}

// SetPreferences updates the preference fields of an existing entry
func (m *MongoLedger) SetPreferences(ctx context.Context, key string, gender models.Gender, accessibleIDs []int) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := m.entries().FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{
			"preferredPersonaGender": gender,
			"accessiblePersonaIds":   normalizeIDs(accessibleIDs),
			"lastActivityAt":         m.now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}
	return &entry, nil
}

// ClaimSignal inserts the claim if absent and returns the stored owner
func (m *MongoLedger) ClaimSignal(ctx context.Context, signal, ownerKey string) (string, error) {
	_, err := m.claims().UpdateOne(ctx,
		bson.M{"_id": signal},
		bson.M{"$setOnInsert": bson.M{"ownerKey": ownerKey, "claimedAt": m.now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return "", fmt.Errorf("failed to claim signal: %w", err)
	}

	var claim struct {
		OwnerKey string `bson:"ownerKey"`
	}
	if err := m.claims().FindOne(ctx, bson.M{"_id": signal}).Decode(&claim); err != nil {
		return "", fmt.Errorf("failed to read signal owner: %w", err)
	}
	return claim.OwnerKey, nil
}

// Ping checks the connection
func (m *MongoLedger) Ping(ctx context.Context) error {
	return m.db.Ping(ctx)
}
