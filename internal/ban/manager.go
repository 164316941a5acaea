package ban

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/messaging"
	"github.com/whisper/moderation/internal/metrics"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Request describes a block. DurationHours is ignored for permanent blocks.
type Request struct {
	UserID        primitive.ObjectID
	Reason        string
	DurationHours int
	AdminID       *primitive.ObjectID // nil for automatic escalation
	FullBlock     bool
	Permanent     bool
	Origin        models.BlockOrigin
}

// Event is published on moderation.user_blocked and moderation.user_unblocked.
type Event struct {
	UserID       string             `json:"user_id"`
	Reason       string             `json:"reason,omitempty"`
	Origin       models.BlockOrigin `json:"origin,omitempty"`
	BlockedUntil *time.Time         `json:"blocked_until,omitempty"`
	Permanent    bool               `json:"permanent,omitempty"`
	FullBlock    bool               `json:"full_block,omitempty"`
	ActorID      string             `json:"actor_id,omitempty"`
	Ts           int64              `json:"ts"`
}

// Decision is the answer to a send-permission or login check.
type Decision struct {
	Allowed      bool       `json:"allowed"`
	Reason       string     `json:"reason,omitempty"`
	Message      string     `json:"message,omitempty"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
	Permanent    bool       `json:"permanent,omitempty"`
	Evasion      bool       `json:"evasion,omitempty"`
}

// LoginIdentity is what the identity layer presents at login. UserID is
// zero for a registration attempt.
type LoginIdentity struct {
	UserID   primitive.ObjectID
	Phone    string
	IP       string
	DeviceID string
}

// Manager is the Block Manager.
type Manager struct {
	users repositories.UserRepository
	cache *Cache
	audit repositories.AuditLog
	pub   messaging.Publisher
	now   func() time.Time
}

// NewManager creates a Block Manager. cache, audit and pub may be nil.
func NewManager(users repositories.UserRepository, cache *Cache, audit repositories.AuditLog, pub messaging.Publisher) *Manager {
	return &Manager{users: users, cache: cache, audit: audit, pub: pub, now: time.Now}
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func nonEmpty(s string) []string {
	if s == "" {
		return []string{}
	}
	return []string{s}
}

// Block applies a restriction. It fails with ErrAlreadyBlocked when the user
// is blocked at the moment of the call; durations are never extended.
func (m *Manager) Block(ctx context.Context, req Request) (models.Restriction, error) {
	if req.Origin == "" {
		req.Origin = models.BlockManual
	}
	if !req.Origin.Valid() {
		return models.Restriction{}, apperrors.Validation("invalid block origin %q", req.Origin)
	}
	if !req.Permanent && (req.DurationHours < models.MinBlockDurationHours || req.DurationHours > models.MaxBlockDurationHours) {
		return models.Restriction{}, apperrors.Validation("durationHours must be between %d and %d",
			models.MinBlockDurationHours, models.MaxBlockDurationHours)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return models.Restriction{}, apperrors.Validation("block reason is required")
	}

	user, err := m.users.FindByID(ctx, req.UserID)
	if err != nil {
		return models.Restriction{}, err
	}

	now := m.now()
	r := models.Restriction{
		IsBlocked: true,
		Permanent: req.Permanent,
		BlockedAt: &now,
		Reason:    req.Reason,
		BlockedBy: req.AdminID,
		Origin:    req.Origin,
	}
	if !req.Permanent {
		until := now.Add(time.Duration(req.DurationHours) * time.Hour)
		r.BlockedUntil = &until
	}
	if req.FullBlock {
		r.BlockedIdentifiers = &models.BlockedIdentifiers{
			Phone:     user.Phone,
			IPs:       nonEmpty(user.LastLoginIP),
			DeviceIDs: nonEmpty(user.LastDeviceID),
		}
	}

	updated, err := m.users.ApplyRestriction(ctx, req.UserID, r, now)
	if err != nil {
		return models.Restriction{}, err
	}
	applied := updated.Restriction()
	userID := req.UserID.Hex()

	if m.cache != nil {
		var ttl time.Duration
		if applied.BlockedUntil != nil {
			ttl = applied.BlockedUntil.Sub(now)
		}
		if err := m.cache.Set(ctx, userID, applied.Reason, ttl); err != nil {
			log.Printf("[ban] cache set user=%s: %v", userID, err)
		}
	}

	evt := Event{
		UserID:       userID,
		Reason:       applied.Reason,
		Origin:       applied.Origin,
		BlockedUntil: applied.BlockedUntil,
		Permanent:    applied.Permanent,
		FullBlock:    req.FullBlock,
		Ts:           now.Unix(),
	}
	if req.AdminID != nil {
		evt.ActorID = req.AdminID.Hex()
	}
	if err := messaging.PublishJSON(m.pub, messaging.SubjectUserBlocked, evt); err != nil {
		log.Printf("[ban] publish blocked user=%s: %v", userID, err)
	}

	meta := map[string]any{
		"origin":    string(applied.Origin),
		"fullBlock": req.FullBlock,
		"permanent": applied.Permanent,
	}
	if applied.BlockedUntil != nil {
		meta["blockedUntil"] = applied.BlockedUntil.UTC().Format(time.RFC3339)
	}
	repositories.RecordAudit(ctx, m.audit, &models.AuditEvent{
		UserID:    userID,
		Action:    models.AuditUserBlocked,
		ActorID:   evt.ActorID,
		Reason:    applied.Reason,
		Metadata:  meta,
		CreatedAt: now,
	})
	metrics.BlocksApplied.WithLabelValues(string(applied.Origin), strconv.FormatBool(req.FullBlock)).Inc()

	log.Printf("[ban] user blocked user=%s origin=%s full=%t permanent=%t reason=%q",
		userID, applied.Origin, req.FullBlock, applied.Permanent, applied.Reason)
	return applied, nil
}

// Unblock lifts the restriction and the identifier bundle together. It
// fails with ErrNotBlocked when the user is not blocked at the moment of the
// call.
func (m *Manager) Unblock(ctx context.Context, userID primitive.ObjectID, adminID *primitive.ObjectID, reason string) (models.Restriction, error) {
	now := m.now()
	updated, err := m.users.ClearRestriction(ctx, userID, now)
	if err != nil {
		return models.Restriction{}, err
	}
	id := userID.Hex()

	if m.cache != nil {
		if err := m.cache.Clear(ctx, id); err != nil {
			log.Printf("[ban] cache clear user=%s: %v", id, err)
		}
	}

	evt := Event{UserID: id, Reason: reason, Ts: now.Unix()}
	if adminID != nil {
		evt.ActorID = adminID.Hex()
	}
	if err := messaging.PublishJSON(m.pub, messaging.SubjectUserUnblocked, evt); err != nil {
		log.Printf("[ban] publish unblocked user=%s: %v", id, err)
	}
	repositories.RecordAudit(ctx, m.audit, &models.AuditEvent{
		UserID:    id,
		Action:    models.AuditUserUnblocked,
		ActorID:   evt.ActorID,
		Reason:    reason,
		CreatedAt: now,
	})
	metrics.Unblocks.Inc()

	log.Printf("[ban] user unblocked user=%s actor=%s", id, evt.ActorID)
	return updated.Restriction(), nil
}

// Status returns the user's restriction with lazy expiry applied: a block
// whose blockedUntil has passed is reported as lifted even before the sweep
// clears the flag.
func (m *Manager) Status(ctx context.Context, userID primitive.ObjectID) (models.Restriction, error) {
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return models.Restriction{}, err
	}
	r := user.Restriction()
	if !r.ActiveAt(m.now()) {
		r.IsBlocked = false
		r.Permanent = false
	}
	return r, nil
}

// BlockedMessage is the user-visible explanation of a restriction.
func BlockedMessage(r models.Restriction) string {
	if r.BlockedUntil == nil {
		return "Your account has been blocked."
	}
	return fmt.Sprintf("Your account is blocked until %s.", r.BlockedUntil.UTC().Format(time.RFC1123))
}

func denied(r models.Restriction) Decision {
	return Decision{
		Allowed:      false,
		Reason:       r.Reason,
		Message:      BlockedMessage(r),
		BlockedUntil: r.BlockedUntil,
		Permanent:    r.BlockedUntil == nil,
	}
}

// CanSend is the send-permission check used by the chat path. The Redis
// cache answers first; on a miss or a Redis error the user document decides
// and a positive answer is written back to the cache.
func (m *Manager) CanSend(ctx context.Context, userID primitive.ObjectID) (Decision, error) {
	now := m.now()
	id := userID.Hex()

	if m.cache != nil {
		entry, err := m.cache.Lookup(ctx, id)
		if err != nil {
			log.Printf("[ban] cache lookup user=%s: %v (falling back to store)", id, err)
		} else if entry.Blocked {
			r := models.Restriction{IsBlocked: true, Reason: entry.Reason}
			if entry.TTL > 0 {
				until := now.Add(entry.TTL)
				r.BlockedUntil = &until
			}
			return denied(r), nil
		}
	}

	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	r := user.Restriction()
	if !r.ActiveAt(now) {
		return Decision{Allowed: true}, nil
	}

	if m.cache != nil {
		var ttl time.Duration
		if r.BlockedUntil != nil {
			ttl = r.BlockedUntil.Sub(now)
		}
		if err := m.cache.Set(ctx, id, r.Reason, ttl); err != nil {
			log.Printf("[ban] cache warm user=%s: %v", id, err)
		}
	}
	return denied(r), nil
}

// IsEvasionBlocked reports whether any other user blocked right now carries
// one of the presented identifiers in its bundle.
func (m *Manager) IsEvasionBlocked(ctx context.Context, q repositories.IdentityQuery) (bool, error) {
	if q.Empty() {
		return false, nil
	}
	found, err := m.users.BlockedIdentifierExists(ctx, q, m.now())
	if err != nil {
		return false, fmt.Errorf("ban: evasion check: %w", err)
	}
	return found, nil
}

// CheckLogin runs at login: the user's own restriction first (lazy expiry),
// then the identifier evasion check.
func (m *Manager) CheckLogin(ctx context.Context, id LoginIdentity) (Decision, error) {
	if !id.UserID.IsZero() {
		user, err := m.users.FindByID(ctx, id.UserID)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			// Registration flows present identifiers before the account exists.
		case err != nil:
			return Decision{}, err
		default:
			if r := user.Restriction(); r.ActiveAt(m.now()) {
				return denied(r), nil
			}
		}
	}

	evading, err := m.IsEvasionBlocked(ctx, repositories.IdentityQuery{
		ExcludeUserID: id.UserID,
		Phone:         id.Phone,
		IP:            id.IP,
		DeviceID:      id.DeviceID,
	})
	if err != nil {
		return Decision{}, err
	}
	if evading {
		metrics.EvasionRejections.Inc()
		log.Printf("[ban] login rejected: identifier matches a blocked account user=%s", id.UserID.Hex())
		return Decision{
			Allowed: false,
			Reason:  "blocked_identifier",
			Message: "This device or network is associated with a blocked account.",
			Evasion: true,
		}, nil
	}
	return Decision{Allowed: true}, nil
}

// SweepExpired clears lapsed time-boxed restrictions. Identifier bundles
// are kept, but they stop matching the evasion check once the block lapses.
// Permanent blocks are never touched.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	now := m.now()
	n, err := m.users.ClearExpiredRestrictions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("ban: sweep expired: %w", err)
	}
	if n > 0 {
		metrics.SweptRecords.WithLabelValues("blocks").Add(float64(n))
		repositories.RecordAudit(ctx, m.audit, &models.AuditEvent{
			Action:    models.AuditBlocksExpired,
			Reason:    "block duration elapsed",
			Metadata:  map[string]any{"count": n},
			CreatedAt: now,
		})
	}
	return n, nil
}

// CountBlocked is the number of users blocked right now.
func (m *Manager) CountBlocked(ctx context.Context) (int64, error) {
	return m.users.CountBlocked(ctx, m.now())
}
