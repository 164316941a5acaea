package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repositories.WarningRepository = (*WarningRepository)(nil)

type WarningRepository struct {
	mu       sync.RWMutex
	warnings []*models.Warning
}

func NewWarningRepository() *WarningRepository {
	return &WarningRepository{}
}

func cloneWarning(w *models.Warning) *models.Warning {
	c := *w
	return &c
}

func (r *WarningRepository) find(id primitive.ObjectID) *models.Warning {
	for _, w := range r.warnings {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (r *WarningRepository) Create(_ context.Context, w *models.Warning) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	r.warnings = append(r.warnings, cloneWarning(w))
	return nil
}

func (r *WarningRepository) FindByID(_ context.Context, id primitive.ObjectID) (*models.Warning, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if w := r.find(id); w != nil {
		return cloneWarning(w), nil
	}
	return nil, apperrors.ErrWarningNotFound
}

func (r *WarningRepository) FindByUser(_ context.Context, userID primitive.ObjectID, filter repositories.WarningFilter) ([]*models.Warning, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Warning{}
	for _, w := range r.warnings {
		if w.User != userID {
			continue
		}
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		out = append(out, cloneWarning(w))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *WarningRepository) CountRolling(_ context.Context, userID primitive.ObjectID, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, w := range r.warnings {
		if w.User == userID && w.Status != models.WarningExpired && !w.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *WarningRepository) MarkBlock(_ context.Context, id primitive.ObjectID, hours int, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.find(id)
	if w == nil {
		return apperrors.ErrWarningNotFound
	}
	w.LeadsToBlock = true
	w.BlockDurationHours = hours
	w.BlockReason = reason
	w.UpdatedAt = at
	return nil
}

func (r *WarningRepository) UpdateDetails(_ context.Context, id primitive.ObjectID, severity models.Severity, message string, at time.Time) (*models.Warning, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.find(id)
	if w == nil {
		return nil, apperrors.ErrWarningNotFound
	}
	if severity != "" {
		w.Severity = severity
	}
	if message != "" {
		w.WarningMessage = message
	}
	w.UpdatedAt = at
	return cloneWarning(w), nil
}

func applyUpdate(w *models.Warning, u repositories.WarningUpdate) {
	w.Status = u.Status
	if u.AppealReason != "" {
		w.AppealReason = u.AppealReason
	}
	if u.AppealResponse != "" {
		w.AppealResponse = u.AppealResponse
	}
	if u.AppealedAt != nil {
		w.AppealedAt = u.AppealedAt
	}
	if u.ResolvedBy != nil {
		w.ResolvedBy = u.ResolvedBy
	}
	if u.ResolvedAt != nil {
		w.ResolvedAt = u.ResolvedAt
	}
	w.UpdatedAt = u.UpdatedAt
}

func (r *WarningRepository) Transition(_ context.Context, id primitive.ObjectID, from []models.WarningStatus, update repositories.WarningUpdate) (*models.Warning, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.find(id)
	if w == nil {
		return nil, false, apperrors.ErrWarningNotFound
	}
	if !slices.Contains(from, w.Status) {
		return nil, false, nil
	}
	applyUpdate(w, update)
	return cloneWarning(w), true, nil
}

func (r *WarningRepository) ResolveMany(_ context.Context, ids []primitive.ObjectID, update repositories.WarningUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, w := range r.warnings {
		if slices.Contains(ids, w.ID) && w.Resolvable() {
			applyUpdate(w, update)
			n++
		}
	}
	return n, nil
}

func (r *WarningRepository) ResolveAllForUser(_ context.Context, userID primitive.ObjectID, update repositories.WarningUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, w := range r.warnings {
		if w.User == userID && w.Resolvable() {
			applyUpdate(w, update)
			n++
		}
	}
	return n, nil
}

func (r *WarningRepository) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, w := range r.warnings {
		if w.Status == models.WarningActive && w.ExpiresAt.Before(now) {
			w.Status = models.WarningExpired
			w.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *WarningRepository) CountSince(_ context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, w := range r.warnings {
		if !w.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *WarningRepository) CountUsersWithAtLeast(_ context.Context, since time.Time, n int) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perUser := make(map[primitive.ObjectID]int)
	for _, w := range r.warnings {
		if !w.CreatedAt.Before(since) {
			perUser[w.User]++
		}
	}
	var users int64
	for _, c := range perUser {
		if c >= n {
			users++
		}
	}
	return users, nil
}
