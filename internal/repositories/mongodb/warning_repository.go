package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ repositories.WarningRepository = (*WarningRepository)(nil)

// WarningRepository handles MongoDB operations for the warning ledger.
type WarningRepository struct {
	collection *mongo.Collection
}

func NewWarningRepository(db *mongo.Database) *WarningRepository {
	return &WarningRepository{collection: db.Collection(CollectionWarnings)}
}

var resolvableStatuses = bson.A{models.WarningActive, models.WarningAppealed}

func (r *WarningRepository) Create(ctx context.Context, w *models.Warning) error {
	if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, w); err != nil {
		return fmt.Errorf("warnings: insert: %w", err)
	}
	return nil
}

func (r *WarningRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Warning, error) {
	var w models.Warning
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrWarningNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("warnings: find: %w", err)
	}
	return &w, nil
}

func (r *WarningRepository) FindByUser(ctx context.Context, userID primitive.ObjectID, filter repositories.WarningFilter) ([]*models.Warning, error) {
	query := bson.M{"user": userID}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("warnings: find by user: %w", err)
	}
	defer cursor.Close(ctx)

	out := []*models.Warning{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("warnings: decode: %w", err)
	}
	return out, nil
}

func (r *WarningRepository) CountRolling(ctx context.Context, userID primitive.ObjectID, since time.Time) (int, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{
		"user":      userID,
		"status":    bson.M{"$ne": models.WarningExpired},
		"createdAt": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("warnings: count rolling: %w", err)
	}
	return int(n), nil
}

func (r *WarningRepository) MarkBlock(ctx context.Context, id primitive.ObjectID, hours int, reason string, at time.Time) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"leadsToBlock":       true,
		"blockDurationHours": hours,
		"blockReason":        reason,
		"updatedAt":          at,
	}})
	if err != nil {
		return fmt.Errorf("warnings: mark block: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrWarningNotFound
	}
	return nil
}

func (r *WarningRepository) UpdateDetails(ctx context.Context, id primitive.ObjectID, severity models.Severity, message string, at time.Time) (*models.Warning, error) {
	set := bson.M{"updatedAt": at}
	if severity != "" {
		set["severity"] = severity
	}
	if message != "" {
		set["warningMessage"] = message
	}

	var w models.Warning
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrWarningNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("warnings: update details: %w", err)
	}
	return &w, nil
}

func updateDoc(u repositories.WarningUpdate) bson.M {
	set := bson.M{"status": u.Status, "updatedAt": u.UpdatedAt}
	if u.AppealReason != "" {
		set["appealReason"] = u.AppealReason
	}
	if u.AppealResponse != "" {
		set["appealResponse"] = u.AppealResponse
	}
	if u.AppealedAt != nil {
		set["appealedAt"] = *u.AppealedAt
	}
	if u.ResolvedBy != nil {
		set["resolvedBy"] = *u.ResolvedBy
	}
	if u.ResolvedAt != nil {
		set["resolvedAt"] = *u.ResolvedAt
	}
	return bson.M{"$set": set}
}

func (r *WarningRepository) Transition(ctx context.Context, id primitive.ObjectID, from []models.WarningStatus, update repositories.WarningUpdate) (*models.Warning, bool, error) {
	var w models.Warning
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		updateDoc(update),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&w)
	if err == nil {
		return &w, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("warnings: transition: %w", err)
	}

	// Distinguish a missing warning from a failed status guard.
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, false, fmt.Errorf("warnings: transition lookup: %w", err)
	}
	if n == 0 {
		return nil, false, apperrors.ErrWarningNotFound
	}
	return nil, false, nil
}

func (r *WarningRepository) ResolveMany(ctx context.Context, ids []primitive.ObjectID, update repositories.WarningUpdate) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "status": bson.M{"$in": resolvableStatuses}},
		updateDoc(update))
	if err != nil {
		return 0, fmt.Errorf("warnings: resolve many: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *WarningRepository) ResolveAllForUser(ctx context.Context, userID primitive.ObjectID, update repositories.WarningUpdate) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"user": userID, "status": bson.M{"$in": resolvableStatuses}},
		updateDoc(update))
	if err != nil {
		return 0, fmt.Errorf("warnings: resolve for user: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *WarningRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"status": models.WarningActive, "expiresAt": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": models.WarningExpired, "updatedAt": now}})
	if err != nil {
		return 0, fmt.Errorf("warnings: expire: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *WarningRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"createdAt": bson.M{"$gte": since}})
	if err != nil {
		return 0, fmt.Errorf("warnings: count since: %w", err)
	}
	return n, nil
}

func (r *WarningRepository) CountUsersWithAtLeast(ctx context.Context, since time.Time, n int) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"createdAt": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$user", "count": bson.M{"$sum": 1}}}},
		{{Key: "$match", Value: bson.M{"count": bson.M{"$gte": n}}}},
		{{Key: "$count", Value: "users"}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("warnings: aggregate repeat offenders: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Users int64 `bson:"users"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("warnings: decode repeat offenders: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Users, nil
}
