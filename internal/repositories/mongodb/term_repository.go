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

var _ repositories.TermRepository = (*TermRepository)(nil)

// TermRepository handles MongoDB operations for banned terms.
type TermRepository struct {
	collection *mongo.Collection
}

func NewTermRepository(db *mongo.Database) *TermRepository {
	return &TermRepository{collection: db.Collection(CollectionTerms)}
}

func (r *TermRepository) Create(ctx context.Context, term *models.BannedTerm) error {
	if term.ID.IsZero() {
		term.ID = primitive.NewObjectID()
	}
	if term.Variations == nil {
		term.Variations = []string{}
	}
	_, err := r.collection.InsertOne(ctx, term)
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.ErrDuplicateTerm
	}
	if err != nil {
		return fmt.Errorf("terms: insert: %w", err)
	}
	return nil
}

// Update sets the admin-editable fields only. violationCount and
// lastViolation belong to IncrementViolation and are never written here.
func (r *TermRepository) Update(ctx context.Context, term *models.BannedTerm) error {
	update := bson.M{"$set": bson.M{
		"word":               term.Word,
		"variations":         term.Variations,
		"category":           term.Category,
		"severity":           term.Severity,
		"warningMessage":     term.WarningMessage,
		"autoBlockThreshold": term.AutoBlockThreshold,
		"blockDurationHours": term.BlockDurationHours,
		"isActive":           term.IsActive,
		"updatedAt":          term.UpdatedAt,
	}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": term.ID}, update)
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.ErrDuplicateTerm
	}
	if err != nil {
		return fmt.Errorf("terms: update: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrTermNotFound
	}
	return nil
}

func (r *TermRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.BannedTerm, error) {
	var term models.BannedTerm
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&term)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrTermNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("terms: find: %w", err)
	}
	return &term, nil
}

func (r *TermRepository) FindAll(ctx context.Context, filter repositories.TermFilter) ([]*models.BannedTerm, error) {
	query := bson.M{}
	if filter.ActiveOnly {
		query["isActive"] = true
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Severity != "" {
		query["severity"] = filter.Severity
	}

	// ObjectIDs are time-ordered, so sorting on _id yields creation order.
	cursor, err := r.collection.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("terms: find all: %w", err)
	}
	defer cursor.Close(ctx)

	terms := []*models.BannedTerm{}
	if err := cursor.All(ctx, &terms); err != nil {
		return nil, fmt.Errorf("terms: decode: %w", err)
	}
	return terms, nil
}

func (r *TermRepository) FindConflicting(ctx context.Context, spellings []string, excludeID primitive.ObjectID) (*models.BannedTerm, error) {
	query := bson.M{
		"$or": bson.A{
			bson.M{"word": bson.M{"$in": spellings}},
			bson.M{"variations": bson.M{"$in": spellings}},
		},
	}
	if !excludeID.IsZero() {
		query["_id"] = bson.M{"$ne": excludeID}
	}

	var term models.BannedTerm
	err := r.collection.FindOne(ctx, query).Decode(&term)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("terms: find conflicting: %w", err)
	}
	return &term, nil
}

func (r *TermRepository) IncrementViolation(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{"violationCount": 1},
		"$set": bson.M{"lastViolation": at},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("terms: increment violation: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrTermNotFound
	}
	return nil
}

func (r *TermRepository) CountActive(ctx context.Context) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"isActive": true})
	if err != nil {
		return 0, fmt.Errorf("terms: count active: %w", err)
	}
	return n, nil
}
