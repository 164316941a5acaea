// Package memory provides in-process implementations of the repository
// contracts. They back the engine tests and local development runs without
// MongoDB or Postgres; every method is safe for concurrent use.
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

var _ repositories.TermRepository = (*TermRepository)(nil)

// TermRepository keeps terms in insertion order.
type TermRepository struct {
	mu    sync.RWMutex
	terms []*models.BannedTerm
}

func NewTermRepository() *TermRepository {
	return &TermRepository{}
}

func cloneTerm(t *models.BannedTerm) *models.BannedTerm {
	c := *t
	c.Variations = slices.Clone(t.Variations)
	if t.LastViolation != nil {
		lv := *t.LastViolation
		c.LastViolation = &lv
	}
	return &c
}

func (r *TermRepository) Create(_ context.Context, term *models.BannedTerm) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.terms {
		if existing.Word == term.Word {
			return apperrors.ErrDuplicateTerm
		}
	}
	if term.ID.IsZero() {
		term.ID = primitive.NewObjectID()
	}
	r.terms = append(r.terms, cloneTerm(term))
	return nil
}

func (r *TermRepository) Update(_ context.Context, term *models.BannedTerm) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.terms {
		if existing.ID == term.ID {
			existing.Word = term.Word
			existing.Variations = slices.Clone(term.Variations)
			existing.Category = term.Category
			existing.Severity = term.Severity
			existing.WarningMessage = term.WarningMessage
			existing.AutoBlockThreshold = term.AutoBlockThreshold
			existing.BlockDurationHours = term.BlockDurationHours
			existing.IsActive = term.IsActive
			existing.UpdatedAt = term.UpdatedAt
			return nil
		}
	}
	return apperrors.ErrTermNotFound
}

func (r *TermRepository) FindByID(_ context.Context, id primitive.ObjectID) (*models.BannedTerm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.terms {
		if t.ID == id {
			return cloneTerm(t), nil
		}
	}
	return nil, apperrors.ErrTermNotFound
}

func (r *TermRepository) FindAll(_ context.Context, filter repositories.TermFilter) ([]*models.BannedTerm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.BannedTerm{}
	for _, t := range r.terms {
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if filter.Severity != "" && t.Severity != filter.Severity {
			continue
		}
		out = append(out, cloneTerm(t))
	}
	return out, nil
}

func (r *TermRepository) FindConflicting(_ context.Context, spellings []string, excludeID primitive.ObjectID) (*models.BannedTerm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.terms {
		if t.ID == excludeID {
			continue
		}
		for _, s := range t.Spellings() {
			if slices.Contains(spellings, s) {
				return cloneTerm(t), nil
			}
		}
	}
	return nil, nil
}

func (r *TermRepository) IncrementViolation(_ context.Context, id primitive.ObjectID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.terms {
		if t.ID == id {
			t.ViolationCount++
			ts := at
			t.LastViolation = &ts
			return nil
		}
	}
	return apperrors.ErrTermNotFound
}

func (r *TermRepository) CountActive(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, t := range r.terms {
		if t.IsActive {
			n++
		}
	}
	return n, nil
}
