package repositories

import (
	"context"
	"log"

	"github.com/whisper/moderation/internal/models"
)

// RecordAudit writes an audit event and logs instead of failing: the trail
// must never block a moderation decision. A nil log is a no-op.
func RecordAudit(ctx context.Context, a AuditLog, event *models.AuditEvent) {
	if a == nil {
		return
	}
	if err := a.Record(ctx, event); err != nil {
		log.Printf("[audit] record %s user=%s failed: %v", event.Action, event.UserID, err)
	}
}
