package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOptions contains connection settings for the MongoDB round history.
type MongoOptions struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. tower
	Collection string // e.g. rounds
}

// MongoRoundRepo implements RoundRepo on MongoDB backend.
type MongoRoundRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoRoundRepo establishes connection, pings and ensures indexes.
func NewMongoRoundRepo(ctx context.Context, cfg MongoOptions) (*MongoRoundRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "tower"
	}
	if cfg.Collection == "" {
		cfg.Collection = "rounds"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	repo := &MongoRoundRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (m *MongoRoundRepo) ensureIndexes(ctx context.Context) error {
	idIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "round_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("round_id_unique"),
	}
	endedIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "ended_at", Value: -1}},
		Options: options.Index().SetName("ended_at_desc"),
	}
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{idIdx, endedIdx})
	return err
}

// Append implements RoundRepo.
func (m *MongoRoundRepo) Append(ctx context.Context, rec RoundRecord) error {
	if err := validateRound(rec); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	if _, err := m.collection.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert round %s: %w", rec.ID, err)
	}
	return nil
}

// Recent implements RoundRepo.
func (m *MongoRoundRepo) Recent(ctx context.Context, limit int) ([]RoundRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "ended_at", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))
	cur, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find rounds: %w", err)
	}
	defer cur.Close(ctx)

	var out []RoundRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode rounds: %w", err)
	}
	return out, nil
}

// Close disconnects the client.
func (m *MongoRoundRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
