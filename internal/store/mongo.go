package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/sessionauth/internal/models"
)

// MongoStore keeps the login audit trail in MongoDB.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("auth_events")}
}

// EnsureIndexes creates the lookup indexes used by RecentEvents.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo create indexes: %w", err)
	}
	return nil
}

// Record inserts one audit event.
func (s *MongoStore) Record(ctx context.Context, ev models.AuthEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if _, err := s.col.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events for userID, newest first.
func (s *MongoStore) RecentEvents(ctx context.Context, userID int64, limit int64) ([]models.AuthEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cur, err := s.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	events := []models.AuthEvent{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", err)
	}
	return events, nil
}
