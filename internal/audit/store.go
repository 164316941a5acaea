// Package audit provides PostgreSQL-backed storage for the moderation audit
// trail. Each event captures who acted on whom, the action, and a small
// JSON metadata blob for moderator review.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
)

var _ repositories.AuditLog = (*Store)(nil)

// validActions is the set of allowed action values.
var validActions = map[string]bool{
	models.AuditWarningIssued:   true,
	models.AuditWarningAppealed: true,
	models.AuditWarningResolved: true,
	models.AuditWarningsExpired: true,
	models.AuditUserBlocked:     true,
	models.AuditUserUnblocked:   true,
	models.AuditBlocksExpired:   true,
	models.AuditTermCreated:     true,
	models.AuditTermUpdated:     true,
}

// Store manages audit events in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres with the lib/pq driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	return db, nil
}

// NewStore creates a new audit store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts an audit event. Metadata is marshalled to JSONB.
func (s *Store) Record(ctx context.Context, event *models.AuditEvent) error {
	if !validActions[event.Action] {
		return fmt.Errorf("audit: invalid action %q", event.Action)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
	}

	const query = `
		INSERT INTO moderation_events (id, user_id, action, actor_id, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		nullString(event.UserID),
		event.Action,
		nullString(event.ActorID),
		event.Reason,
		metadata,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// CountSince returns the number of events with the given action recorded at
// or after since.
func (s *Store) CountSince(ctx context.Context, action string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_events
		WHERE action = $1
		  AND created_at >= $2`

	var count int
	if err := s.db.QueryRowContext(ctx, query, action, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("audit: count since: %w", err)
	}
	return count, nil
}

// ListByUser returns the user's most recent events, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, COALESCE(user_id, ''), action, COALESCE(actor_id, ''), reason, metadata, created_at
		FROM moderation_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list by user: %w", err)
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		var e models.AuditEvent
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ActorID, &e.Reason, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &e.Metadata)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
