package models

import "time"

// Audit actions written to the moderation trail.
const (
	AuditWarningIssued   = "warning_issued"
	AuditWarningAppealed = "warning_appealed"
	AuditWarningResolved = "warning_resolved"
	AuditWarningsExpired = "warnings_expired"
	AuditUserBlocked     = "user_blocked"
	AuditUserUnblocked   = "user_unblocked"
	AuditBlocksExpired   = "blocks_expired"
	AuditTermCreated     = "term_created"
	AuditTermUpdated     = "term_updated"
)

// AuditEvent is one row of the moderation audit trail.
type AuditEvent struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId,omitempty"`
	Action    string         `json:"action"`
	ActorID   string         `json:"actorId,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
