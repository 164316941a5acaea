package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repositories.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*models.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[primitive.ObjectID]*models.User)}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.BlockedIdentifiers != nil {
		ids := *u.BlockedIdentifiers
		ids.IPs = slices.Clone(ids.IPs)
		ids.DeviceIDs = slices.Clone(ids.DeviceIDs)
		c.BlockedIdentifiers = &ids
	}
	return &c
}

// Put inserts or replaces a user document. The users collection is owned by
// the profile service; this exists for seeding tests and local runs.
func (r *UserRepository) Put(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	r.users[u.ID] = cloneUser(u)
}

func (r *UserRepository) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) ApplyRestriction(_ context.Context, id primitive.ObjectID, rs models.Restriction, now time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	if u.Restriction().ActiveAt(now) {
		return nil, apperrors.ErrAlreadyBlocked
	}
	u.IsBlocked = true
	u.BlockedUntil = rs.BlockedUntil
	u.BlockedAt = rs.BlockedAt
	u.BlockReason = rs.Reason
	u.BlockedBy = rs.BlockedBy
	u.BlockOrigin = rs.Origin
	u.BlockedIdentifiers = rs.BlockedIdentifiers
	return cloneUser(u), nil
}

func (r *UserRepository) ClearRestriction(_ context.Context, id primitive.ObjectID, now time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	if !u.Restriction().ActiveAt(now) {
		return nil, apperrors.ErrNotBlocked
	}
	clearRestriction(u)
	u.BlockedIdentifiers = nil
	return cloneUser(u), nil
}

func clearRestriction(u *models.User) {
	u.IsBlocked = false
	u.BlockedUntil = nil
	u.BlockReason = ""
	u.BlockedBy = nil
	u.BlockOrigin = ""
}

func (r *UserRepository) ClearExpiredRestrictions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, u := range r.users {
		if u.IsBlocked && u.BlockedUntil != nil && u.BlockedUntil.Before(now) {
			clearRestriction(u)
			n++
		}
	}
	return n, nil
}

func (r *UserRepository) BlockedIdentifierExists(_ context.Context, q repositories.IdentityQuery, now time.Time) (bool, error) {
	if q.Empty() {
		return false, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, u := range r.users {
		if id == q.ExcludeUserID || u.BlockedIdentifiers == nil || !u.Restriction().ActiveAt(now) {
			continue
		}
		b := u.BlockedIdentifiers
		if q.Phone != "" && b.Phone == q.Phone {
			return true, nil
		}
		if q.IP != "" && slices.Contains(b.IPs, q.IP) {
			return true, nil
		}
		if q.DeviceID != "" && slices.Contains(b.DeviceIDs, q.DeviceID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) CountBlocked(_ context.Context, now time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, u := range r.users {
		if u.Restriction().ActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (r *UserRepository) CountBlockedSince(_ context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, u := range r.users {
		if u.BlockedAt != nil && !u.BlockedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
