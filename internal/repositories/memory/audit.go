package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
)

var _ repositories.AuditLog = (*AuditLog)(nil)

type AuditLog struct {
	mu     sync.RWMutex
	events []models.AuditEvent
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Record(_ context.Context, event *models.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	a.events = append(a.events, *event)
	return nil
}

func (a *AuditLog) CountSince(_ context.Context, action string, since time.Time) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := 0
	for _, e := range a.events {
		if e.Action == action && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ListByUser returns the user's events newest first.
func (a *AuditLog) ListByUser(_ context.Context, userID string, limit int) ([]models.AuditEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := []models.AuditEvent{}
	for i := len(a.events) - 1; i >= 0 && len(out) < limit; i-- {
		if a.events[i].UserID == userID {
			out = append(out, a.events[i])
		}
	}
	return out, nil
}
