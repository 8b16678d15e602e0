package repository

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linguaverse/messaging-service/internal/models"
)

const mutateRetries = 5

type MongoMessageRepo struct {
	coll *mongo.Collection
}

func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	return &MongoMessageRepo{coll: db.Collection("messages")}
}

func (r *MongoMessageRepo) Create(ctx context.Context, m *models.Message) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Version = 1
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *MongoMessageRepo) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Mutate re-reads the document, applies fn, and writes back guarded by the
// version field. A concurrent writer bumps the version and the update matches
// nothing, in which case we retry from a fresh read.
func (r *MongoMessageRepo) Mutate(ctx context.Context, id string, fn func(*models.Message) error) (*models.Message, error) {
	for i := 0; i < mutateRetries; i++ {
		m, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		prev := m.Version
		if err := fn(m); err != nil {
			return nil, err
		}
		m.Version = prev + 1
		m.UpdatedAt = time.Now().UTC()
		res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": id, "version": prev}, m)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return m, nil
		}
	}
	return nil, ErrConflict
}

func (r *MongoMessageRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoMessageRepo) FindByConversation(ctx context.Context, convID string, limit int64, before time.Time) ([]*models.Message, error) {
	filter := bson.M{"conversation_id": convID, "is_deleted": false}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	// chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, cur.Err()
}

func (r *MongoMessageRepo) CountUnread(ctx context.Context, convID, userID string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{
		"conversation_id": convID,
		"is_read":         false,
		"is_deleted":      false,
		"sender_id":       bson.M{"$ne": userID},
	})
}

func (r *MongoMessageRepo) Search(ctx context.Context, f SearchFilter) ([]*models.Message, error) {
	filter := bson.M{
		"is_deleted": false,
		"content": primitive.Regex{
			Pattern: regexp.QuoteMeta(f.Query),
			Options: "i",
		},
		"metadata.hidden_for_users": bson.M{"$ne": f.UserID},
	}
	if len(f.ConversationIDs) > 0 {
		filter["conversation_id"] = bson.M{"$in": f.ConversationIDs}
	}
	if f.MessageType != "" {
		filter["message_type"] = f.MessageType
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (r *MongoMessageRepo) UserStats(ctx context.Context, userID string) (*MessageStats, error) {
	sent, err := r.coll.CountDocuments(ctx, bson.M{"sender_id": userID, "is_deleted": false})
	if err != nil {
		return nil, err
	}
	received, err := r.coll.CountDocuments(ctx, bson.M{"receiver_id": userID, "is_deleted": false})
	if err != nil {
		return nil, err
	}
	return &MessageStats{Sent: sent, Received: received}, nil
}
