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

var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository touches only the restriction fields of the shared users
// collection.
type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(CollectionUsers)}
}

// userProjection limits reads to the fields this service owns or needs.
var userProjection = bson.M{
	"phone": 1, "lastLoginIp": 1, "lastDeviceId": 1,
	"isBlocked": 1, "blockedUntil": 1, "blockedAt": 1, "blockReason": 1,
	"blockedBy": 1, "blockOrigin": 1, "blockedIdentifiers": 1,
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(userProjection)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: find: %w", err)
	}
	return &u, nil
}

// exists is used after a guarded update matched nothing, to tell a missing
// user apart from a failed state guard.
func (r *UserRepository) exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("users: lookup: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) ApplyRestriction(ctx context.Context, id primitive.ObjectID, rs models.Restriction, now time.Time) (*models.User, error) {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"isBlocked": bson.M{"$ne": true}},
			bson.M{"blockedUntil": bson.M{"$lte": now}},
		},
	}
	set := bson.M{
		"isBlocked":    true,
		"blockedUntil": rs.BlockedUntil,
		"blockedAt":    rs.BlockedAt,
		"blockReason":  rs.Reason,
		"blockOrigin":  rs.Origin,
	}
	unset := bson.M{}
	if rs.BlockedBy != nil {
		set["blockedBy"] = *rs.BlockedBy
	} else {
		unset["blockedBy"] = ""
	}
	if rs.BlockedIdentifiers != nil {
		set["blockedIdentifiers"] = rs.BlockedIdentifiers
	} else {
		unset["blockedIdentifiers"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var u models.User
	err := r.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(userProjection),
	).Decode(&u)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("users: apply restriction: %w", err)
	}
	ok, err := r.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return nil, apperrors.ErrAlreadyBlocked
}

// liftUpdate clears the account-level restriction. blockedAt is kept for
// reporting.
func liftUpdate(withIdentifiers bool) bson.M {
	unset := bson.M{"blockReason": "", "blockedBy": "", "blockOrigin": ""}
	if withIdentifiers {
		unset["blockedIdentifiers"] = ""
	}
	return bson.M{
		"$set":   bson.M{"isBlocked": false, "blockedUntil": nil},
		"$unset": unset,
	}
}

func (r *UserRepository) ClearRestriction(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.User, error) {
	filter := activeBlockClause(now)
	filter["_id"] = id

	var u models.User
	err := r.collection.FindOneAndUpdate(ctx, filter, liftUpdate(true),
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(userProjection),
	).Decode(&u)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("users: clear restriction: %w", err)
	}
	ok, err := r.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return nil, apperrors.ErrNotBlocked
}

func (r *UserRepository) ClearExpiredRestrictions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"isBlocked": true, "blockedUntil": bson.M{"$lt": now}},
		liftUpdate(false))
	if err != nil {
		return 0, fmt.Errorf("users: clear expired: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *UserRepository) BlockedIdentifierExists(ctx context.Context, q repositories.IdentityQuery, now time.Time) (bool, error) {
	if q.Empty() {
		return false, nil
	}

	var matches bson.A
	if q.Phone != "" {
		matches = append(matches, bson.M{"blockedIdentifiers.phone": q.Phone})
	}
	if q.IP != "" {
		matches = append(matches, bson.M{"blockedIdentifiers.ips": q.IP})
	}
	if q.DeviceID != "" {
		matches = append(matches, bson.M{"blockedIdentifiers.deviceIds": q.DeviceID})
	}

	filter := bson.M{
		"isBlocked": true,
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"blockedUntil": nil},
				bson.M{"blockedUntil": bson.M{"$gt": now}},
			}},
			bson.M{"$or": matches},
		},
	}
	if !q.ExcludeUserID.IsZero() {
		filter["_id"] = bson.M{"$ne": q.ExcludeUserID}
	}

	n, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("users: identifier lookup: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) CountBlocked(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, activeBlockClause(now))
	if err != nil {
		return 0, fmt.Errorf("users: count blocked: %w", err)
	}
	return n, nil
}

func (r *UserRepository) CountBlockedSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"blockedAt": bson.M{"$gte": since}})
	if err != nil {
		return 0, fmt.Errorf("users: count blocked since: %w", err)
	}
	return n, nil
}
