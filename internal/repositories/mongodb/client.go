// Package mongodb implements the repository contracts on MongoDB. The
// collections mirror the documents the rest of the platform already uses:
// bannedwords, warnings and the shared users collection.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	CollectionTerms    = "bannedwords"
	CollectionWarnings = "warnings"
	CollectionUsers    = "users"
)

// Connect opens a client and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the moderation queries rely on. It is
// idempotent and safe to call on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		CollectionTerms: {
			{Keys: bson.D{{Key: "word", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "variations", Value: 1}}},
			{Keys: bson.D{{Key: "isActive", Value: 1}}},
		},
		CollectionWarnings: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		CollectionUsers: {
			{Keys: bson.D{{Key: "isBlocked", Value: 1}, {Key: "blockedUntil", Value: 1}}},
			{Keys: bson.D{{Key: "blockedIdentifiers.phone", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "blockedIdentifiers.ips", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "blockedIdentifiers.deviceIds", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
	}

	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongodb: create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// activeBlockClause matches users whose restriction is in force at now:
// a null blockedUntil is permanent.
func activeBlockClause(now time.Time) bson.M {
	return bson.M{
		"isBlocked": true,
		"$or": bson.A{
			bson.M{"blockedUntil": nil},
			bson.M{"blockedUntil": bson.M{"$gt": now}},
		},
	}
}
