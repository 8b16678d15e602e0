package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect opens a Mongo client and pings it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes the messaging core relies on. The unique
// index on participants_key is what makes concurrent private-conversation
// creation race-safe: the losing insert fails with a duplicate key and the
// caller re-reads the winner.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	convIdx := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "participants_key", Value: 1}},
			Options: options.Index().
				SetName("participants_key_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"type":      "private",
					"is_active": true,
				}),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}},
			Options: options.Index().SetName("participants_idx"),
		},
	}
	if _, err := db.Collection("conversations").Indexes().CreateMany(ctx, convIdx); err != nil {
		return err
	}

	msgIdx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("conversation_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "sender_id", Value: 1}},
			Options: options.Index().SetName("sender_idx"),
		},
	}
	_, err := db.Collection("messages").Indexes().CreateMany(ctx, msgIdx)
	return err
}

func isDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
