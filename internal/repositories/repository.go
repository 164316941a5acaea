// Package repositories declares the storage contracts used by the moderation
// engine. Implementations live in the mongodb and memory subpackages; the
// audit trail is implemented by internal/audit.
//
// Methods that depend on the current time take it as an argument so that
// storage stays clock-free and the engine controls every cutoff.
package repositories

import (
	"context"
	"time"

	"github.com/whisper/moderation/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TermFilter narrows a lexicon listing.
type TermFilter struct {
	ActiveOnly bool
	Category   models.TermCategory
	Severity   models.Severity
}

// TermRepository stores the banned-term lexicon.
type TermRepository interface {
	Create(ctx context.Context, term *models.BannedTerm) error
	// Update writes the admin-editable fields and updatedAt. The violation
	// counter fields are left to IncrementViolation.
	Update(ctx context.Context, term *models.BannedTerm) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.BannedTerm, error)
	// FindAll returns terms in storage (creation) order.
	FindAll(ctx context.Context, filter TermFilter) ([]*models.BannedTerm, error)
	// FindConflicting returns a term other than excludeID whose word or
	// variations contain any of spellings, or nil if there is none.
	FindConflicting(ctx context.Context, spellings []string, excludeID primitive.ObjectID) (*models.BannedTerm, error)
	// IncrementViolation atomically bumps violationCount and stamps lastViolation.
	IncrementViolation(ctx context.Context, id primitive.ObjectID, at time.Time) error
	CountActive(ctx context.Context) (int64, error)
}

// WarningFilter narrows a warning listing.
type WarningFilter struct {
	Status models.WarningStatus
	Limit  int
}

// WarningUpdate is applied by Transition when the CAS on status succeeds.
type WarningUpdate struct {
	Status         models.WarningStatus
	AppealReason   string
	AppealResponse string
	AppealedAt     *time.Time
	ResolvedBy     *primitive.ObjectID
	ResolvedAt     *time.Time
	UpdatedAt      time.Time
}

// WarningRepository stores the warning ledger.
type WarningRepository interface {
	Create(ctx context.Context, w *models.Warning) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Warning, error)
	// FindByUser returns the user's warnings, newest first.
	FindByUser(ctx context.Context, userID primitive.ObjectID, filter WarningFilter) ([]*models.Warning, error)
	// CountRolling counts the user's warnings with status != expired and
	// createdAt >= since.
	CountRolling(ctx context.Context, userID primitive.ObjectID, since time.Time) (int, error)
	// MarkBlock records that the warning led to a block.
	MarkBlock(ctx context.Context, id primitive.ObjectID, hours int, reason string, at time.Time) error
	// UpdateDetails edits severity and/or message; expiresAt is left alone.
	UpdateDetails(ctx context.Context, id primitive.ObjectID, severity models.Severity, message string, at time.Time) (*models.Warning, error)
	// Transition moves the warning to update.Status only if its current
	// status is one of from. It returns ErrWarningNotFound when the warning
	// does not exist and (nil, false, nil) when the status guard fails.
	Transition(ctx context.Context, id primitive.ObjectID, from []models.WarningStatus, update WarningUpdate) (*models.Warning, bool, error)
	// ResolveMany resolves the active/appealed warnings among ids.
	ResolveMany(ctx context.Context, ids []primitive.ObjectID, update WarningUpdate) (int64, error)
	// ResolveAllForUser resolves every active/appealed warning of the user.
	ResolveAllForUser(ctx context.Context, userID primitive.ObjectID, update WarningUpdate) (int64, error)
	// ExpireBefore moves active warnings with expiresAt < now to expired.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	// CountUsersWithAtLeast counts distinct users having at least n warnings
	// created since the cutoff.
	CountUsersWithAtLeast(ctx context.Context, since time.Time, n int) (int64, error)
}

// IdentityQuery is the identifier set presented at login.
type IdentityQuery struct {
	ExcludeUserID primitive.ObjectID
	Phone         string
	IP            string
	DeviceID      string
}

// Empty reports whether no identifier was presented.
func (q IdentityQuery) Empty() bool {
	return q.Phone == "" && q.IP == "" && q.DeviceID == ""
}

// UserRepository reads and writes the restriction fields of user documents.
type UserRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	// ApplyRestriction sets the restriction only if the user is not
	// currently blocked at now. Returns ErrAlreadyBlocked or ErrUserNotFound.
	ApplyRestriction(ctx context.Context, id primitive.ObjectID, r models.Restriction, now time.Time) (*models.User, error)
	// ClearRestriction removes the restriction and the identifier bundle
	// only if the user is currently blocked. Returns ErrNotBlocked or
	// ErrUserNotFound.
	ClearRestriction(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.User, error)
	// ClearExpiredRestrictions clears flag, until, reason, admin and origin
	// for users whose blockedUntil < now. Identifier bundles are kept.
	ClearExpiredRestrictions(ctx context.Context, now time.Time) (int64, error)
	// BlockedIdentifierExists reports whether any other user blocked at now
	// carries one of the presented identifiers in its bundle.
	BlockedIdentifierExists(ctx context.Context, q IdentityQuery, now time.Time) (bool, error)
	CountBlocked(ctx context.Context, now time.Time) (int64, error)
	CountBlockedSince(ctx context.Context, since time.Time) (int64, error)
}

// AuditLog records moderation actions for later review.
type AuditLog interface {
	Record(ctx context.Context, event *models.AuditEvent) error
	CountSince(ctx context.Context, action string, since time.Time) (int, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditEvent, error)
}
