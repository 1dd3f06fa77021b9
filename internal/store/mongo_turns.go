package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"heartline/internal/database"
	"heartline/internal/models"
)

// MongoTurns stores turns in conversation_turns, numbering them from a per-pair counter
// document in turn_counters.
type MongoTurns struct {
	db *database.MongoDB
}

// NewMongoTurns creates a turn store backed by MongoDB
func NewMongoTurns(db *database.MongoDB) *MongoTurns {
	return &MongoTurns{db: db}
}

func (m *MongoTurns) turns() *mongo.Collection {
	return m.db.Collection(database.CollectionConversationTurns)
}

// reserve allocates n consecutive sequence numbers and returns the first
func (m *MongoTurns) reserve(ctx context.Context, identityKey string, personaID int, n int) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.db.Collection(database.CollectionTurnCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": pairKey(identityKey, personaID)},
		bson.M{"$inc": bson.M{"seq": int64(n)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve turn sequence: %w", err)
	}
	return counter.Seq - int64(n) + 1, nil
}

// Append inserts turns grouped by pair, preserving argument order
func (m *MongoTurns) Append(ctx context.Context, turns ...models.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}

	type pair struct {
		key     string
		persona int
	}
	counts := make(map[pair]int)
	for _, t := range turns {
		counts[pair{t.IdentityKey, t.PersonaID}]++
	}

	next := make(map[pair]int64, len(counts))
	for p, n := range counts {
		first, err := m.reserve(ctx, p.key, p.persona, n)
		if err != nil {
			return err
		}
		next[p] = first
	}

	docs := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		p := pair{t.IdentityKey, t.PersonaID}
		t.Sequence = next[p]
		next[p]++
		docs = append(docs, t)
	}

	if _, err := m.turns().InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to store turns: %w", err)
	}
	return nil
}

// Recall reads the newest turns and returns them oldest first
func (m *MongoTurns) Recall(ctx context.Context, identityKey string, personaID int, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		return []models.ConversationTurn{}, nil
	}

	cursor, err := m.turns().Find(ctx,
		bson.M{"identityKey": identityKey, "personaId": personaID},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recall turns: %w", err)
	}
	defer cursor.Close(ctx)

	var newestFirst []models.ConversationTurn
	if err := cursor.All(ctx, &newestFirst); err != nil {
		return nil, fmt.Errorf("failed to decode turns: %w", err)
	}

	out := make([]models.ConversationTurn, len(newestFirst))
	for i, t := range newestFirst {
		out[len(newestFirst)-1-i] = t
	}
	return out, nil
}

// Clear deletes the pair's turns; the counter is kept so sequences stay unique
func (m *MongoTurns) Clear(ctx context.Context, identityKey string, personaID int) (int64, error) {
	res, err := m.turns().DeleteMany(ctx, bson.M{"identityKey": identityKey, "personaId": personaID})
	if err != nil {
		return 0, fmt.Errorf("failed to clear turns: %w", err)
	}
	return res.DeletedCount, nil
}
