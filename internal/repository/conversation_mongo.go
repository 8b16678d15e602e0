package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linguaverse/messaging-service/internal/models"
)

type MongoConversationRepo struct {
	coll *mongo.Collection
}

func NewMongoConversationRepo(db *mongo.Database) *MongoConversationRepo {
	return &MongoConversationRepo{coll: db.Collection("conversations")}
}

func (r *MongoConversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = now
	}
	c.IsActive = true
	_, err := r.coll.InsertOne(ctx, c)
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MongoConversationRepo) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id, "is_active": true}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *MongoConversationRepo) FindByParticipantsKey(ctx context.Context, key string) (*models.Conversation, error) {
	var c models.Conversation
	err := r.coll.FindOne(ctx, bson.M{"participants_key": key, "is_active": true}).Decode(&c)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *MongoConversationRepo) FindByUser(ctx context.Context, userID string, limit int64) ([]*models.Conversation, error) {
	filter := bson.M{"participants": userID, "is_active": true}
	opts := options.Find().SetSort(bson.D{{Key: "last_activity_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Conversation
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (r *MongoConversationRepo) GetParticipants(ctx context.Context, id string) ([]string, error) {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Participants, nil
}

func (r *MongoConversationRepo) AddParticipants(ctx context.Context, id string, userIDs []string) error {
	update := bson.M{
		"$addToSet": bson.M{"participants": bson.M{"$each": userIDs}},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := r.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoConversationRepo) RemoveParticipants(ctx context.Context, id string, userIDs []string) error {
	update := bson.M{
		"$pull": bson.M{"participants": bson.M{"$in": userIDs}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := r.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoConversationRepo) UpdateLastActivity(ctx context.Context, id, lastMessageID string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"last_message_id":  lastMessageID,
		"last_activity_at": at,
		"updated_at":       at,
	}}
	_, err := r.coll.UpdateByID(ctx, id, update)
	return err
}

func (r *MongoConversationRepo) IsParticipant(ctx context.Context, id, userID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id, "participants": userID, "is_active": true})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *MongoConversationRepo) SetTitle(ctx context.Context, id, title string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"title":      title,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
