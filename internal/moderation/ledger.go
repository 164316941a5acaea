package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/ban"
	"github.com/whisper/moderation/internal/metrics"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RepeatOffenderThreshold is the warning count that marks a user as a
// repeat offender in the summary statistics.
const RepeatOffenderThreshold = 3

// Blocker is the slice of the Block Manager the ledger drives.
type Blocker interface {
	Block(ctx context.Context, req ban.Request) (models.Restriction, error)
	Unblock(ctx context.Context, userID primitive.ObjectID, adminID *primitive.ObjectID, reason string) (models.Restriction, error)
	CountBlocked(ctx context.Context) (int64, error)
}

// Violation is the outcome of recording one automatic warning.
// Restriction is set only when this violation applied a block.
type Violation struct {
	Warning     *models.Warning
	Restriction *models.Restriction
}

// ManualWarning is an admin-issued warning.
type ManualWarning struct {
	AdminID   primitive.ObjectID
	UserID    primitive.ObjectID
	Type      models.WarningType
	Severity  models.Severity
	Message   string
	ChatID    *primitive.ObjectID
	MessageID *primitive.ObjectID
}

// Stats is the moderation summary shown to admins.
type Stats struct {
	CurrentlyBlocked   int64 `json:"currentlyBlocked"`
	BlocksLast30Days   int64 `json:"blocksLast30Days"`
	WarningsLast30Days int64 `json:"warningsLast30Days"`
	RepeatOffenders    int64 `json:"usersWithThreeOrMoreWarnings"`
	ActiveTerms        int64 `json:"activeBannedWords"`
}

// Ledger is the Warning Ledger together with the escalation step.
type Ledger struct {
	warnings repositories.WarningRepository
	users    repositories.UserRepository
	blocker  Blocker
	audit    repositories.AuditLog
	policy   Policy
	now      func() time.Time
}

// NewLedger creates a ledger. audit may be nil. window <= 0 uses DefaultWindow.
func NewLedger(warnings repositories.WarningRepository, users repositories.UserRepository, blocker Blocker, audit repositories.AuditLog, window time.Duration) *Ledger {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Ledger{
		warnings: warnings,
		users:    users,
		blocker:  blocker,
		audit:    audit,
		policy:   Policy{Window: window},
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

func (l *Ledger) rollingCount(ctx context.Context, userID primitive.ObjectID, now time.Time) (int, error) {
	n, err := l.warnings.CountRolling(ctx, userID, l.policy.Since(now))
	if err != nil {
		return 0, fmt.Errorf("moderation: rolling count: %w", err)
	}
	return n, nil
}

func (l *Ledger) recordIssued(ctx context.Context, w *models.Warning, origin string) {
	meta := map[string]any{
		"warningId":        w.ID.Hex(),
		"type":             string(w.WarningType),
		"severity":         string(w.Severity),
		"userWarningCount": w.UserWarningCount,
	}
	if w.BannedWord != nil {
		meta["bannedWordId"] = w.BannedWord.Hex()
	}
	e := &models.AuditEvent{
		UserID:    w.User.Hex(),
		Action:    models.AuditWarningIssued,
		Reason:    w.WarningMessage,
		Metadata:  meta,
		CreatedAt: w.CreatedAt,
	}
	if w.IssuedBy != nil {
		e.ActorID = w.IssuedBy.Hex()
	}
	repositories.RecordAudit(ctx, l.audit, e)
	metrics.WarningsIssued.WithLabelValues(string(w.WarningType), string(w.Severity), origin).Inc()
}

// RecordViolation writes an automatic banned-word warning for the user and
// escalates to a block when the rolling count reaches the term's threshold.
// A concurrent escalation that already blocked the user is not an error.
// Any other block failure is returned together with the written warning.
func (l *Ledger) RecordViolation(ctx context.Context, userID primitive.ObjectID, term *models.BannedTerm, messageID, chatID *primitive.ObjectID) (*Violation, error) {
	now := l.now()

	count, err := l.rollingCount(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	termID := term.ID
	w := &models.Warning{
		User:             userID,
		WarningType:      models.WarningBannedWord,
		Severity:         term.Severity,
		BannedWord:       &termID,
		ViolatedMessage:  messageID,
		Chat:             chatID,
		WarningMessage:   term.WarningMessage,
		IsAutomatic:      true,
		Status:           models.WarningActive,
		ExpiresAt:        now.Add(term.Severity.WarningLifetime()),
		UserWarningCount: count + 1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.warnings.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("moderation: create warning: %w", err)
	}
	l.recordIssued(ctx, w, "automatic")
	v := &Violation{Warning: w}

	count, err = l.rollingCount(ctx, userID, now)
	if err != nil {
		return v, err
	}
	if !l.policy.ShouldBlock(count, term) {
		return v, nil
	}

	reason := l.policy.BlockReason(count, term)
	r, err := l.blocker.Block(ctx, ban.Request{
		UserID:        userID,
		Reason:        reason,
		DurationHours: term.BlockDurationHours,
		Origin:        models.BlockAutomatic,
	})
	if errors.Is(err, apperrors.ErrAlreadyBlocked) {
		log.Printf("[ledger] user=%s already blocked, escalation skipped warning=%s", userID.Hex(), w.ID.Hex())
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("moderation: escalate: %w", err)
	}

	if err := l.warnings.MarkBlock(ctx, w.ID, term.BlockDurationHours, reason, now); err != nil {
		return v, fmt.Errorf("moderation: mark block: %w", err)
	}
	w.LeadsToBlock = true
	w.BlockDurationHours = term.BlockDurationHours
	w.BlockReason = reason
	v.Restriction = &r
	return v, nil
}

func validateMessage(msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", apperrors.Validation("warning message is required")
	}
	if utf8.RuneCountInString(msg) > models.MaxWarningMessageLen {
		return "", apperrors.Validation("warning message must be at most %d characters", models.MaxWarningMessageLen)
	}
	return msg, nil
}

// IssueManualWarning records an admin warning. Manual warnings count toward
// later automatic escalations but never trigger a block themselves.
func (l *Ledger) IssueManualWarning(ctx context.Context, in ManualWarning) (*models.Warning, error) {
	if in.Type == "" {
		in.Type = models.WarningOther
	}
	if !in.Type.Valid() {
		return nil, apperrors.Validation("invalid warning type %q", in.Type)
	}
	if in.Severity == "" {
		in.Severity = models.SeverityMedium
	}
	if !in.Severity.Valid() {
		return nil, apperrors.Validation("invalid severity %q", in.Severity)
	}
	msg, err := validateMessage(in.Message)
	if err != nil {
		return nil, err
	}
	if _, err := l.users.FindByID(ctx, in.UserID); err != nil {
		return nil, err
	}

	now := l.now()
	count, err := l.rollingCount(ctx, in.UserID, now)
	if err != nil {
		return nil, err
	}
	admin := in.AdminID
	w := &models.Warning{
		User:             in.UserID,
		WarningType:      in.Type,
		Severity:         in.Severity,
		ViolatedMessage:  in.MessageID,
		Chat:             in.ChatID,
		WarningMessage:   msg,
		IssuedBy:         &admin,
		IsAutomatic:      false,
		Status:           models.WarningActive,
		ExpiresAt:        now.Add(in.Severity.WarningLifetime()),
		UserWarningCount: count + 1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.warnings.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("moderation: create warning: %w", err)
	}
	l.recordIssued(ctx, w, "manual")
	log.Printf("[ledger] manual warning user=%s admin=%s type=%s severity=%s",
		in.UserID.Hex(), admin.Hex(), w.WarningType, w.Severity)
	return w, nil
}

// Appeal moves the user's own active warning to appealed. The minimum reason
// length is checked at the API boundary.
func (l *Ledger) Appeal(ctx context.Context, warningID, userID primitive.ObjectID, reason string) (*models.Warning, error) {
	w, err := l.warnings.FindByID(ctx, warningID)
	if err != nil {
		return nil, err
	}
	if w.User != userID {
		return nil, apperrors.ErrWarningNotFound
	}

	now := l.now()
	updated, ok, err := l.warnings.Transition(ctx, warningID,
		[]models.WarningStatus{models.WarningActive},
		repositories.WarningUpdate{
			Status:       models.WarningAppealed,
			AppealReason: strings.TrimSpace(reason),
			AppealedAt:   &now,
			UpdatedAt:    now,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrCannotAppeal
	}

	repositories.RecordAudit(ctx, l.audit, &models.AuditEvent{
		UserID:    userID.Hex(),
		Action:    models.AuditWarningAppealed,
		ActorID:   userID.Hex(),
		Reason:    updated.AppealReason,
		Metadata:  map[string]any{"warningId": warningID.Hex()},
		CreatedAt: now,
	})
	return updated, nil
}

func (l *Ledger) resolution(adminID primitive.ObjectID, notes string, now time.Time) repositories.WarningUpdate {
	return repositories.WarningUpdate{
		Status:         models.WarningResolved,
		AppealResponse: strings.TrimSpace(notes),
		ResolvedBy:     &adminID,
		ResolvedAt:     &now,
		UpdatedAt:      now,
	}
}

// Resolve closes an active or appealed warning. Resolution is terminal.
func (l *Ledger) Resolve(ctx context.Context, warningID, adminID primitive.ObjectID, notes string) (*models.Warning, error) {
	now := l.now()
	updated, ok, err := l.warnings.Transition(ctx, warningID,
		[]models.WarningStatus{models.WarningActive, models.WarningAppealed},
		l.resolution(adminID, notes, now))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrCannotResolve
	}

	repositories.RecordAudit(ctx, l.audit, &models.AuditEvent{
		UserID:    updated.User.Hex(),
		Action:    models.AuditWarningResolved,
		ActorID:   adminID.Hex(),
		Reason:    updated.AppealResponse,
		Metadata:  map[string]any{"warningId": warningID.Hex()},
		CreatedAt: now,
	})
	return updated, nil
}

// BulkResolve resolves whichever of ids are still active or appealed and
// returns how many moved.
func (l *Ledger) BulkResolve(ctx context.Context, ids []primitive.ObjectID, adminID primitive.ObjectID, notes string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperrors.Validation("warningIds must not be empty")
	}
	now := l.now()
	n, err := l.warnings.ResolveMany(ctx, ids, l.resolution(adminID, notes, now))
	if err != nil {
		return 0, fmt.Errorf("moderation: bulk resolve: %w", err)
	}

	hexIDs := make([]string, len(ids))
	for i, id := range ids {
		hexIDs[i] = id.Hex()
	}
	repositories.RecordAudit(ctx, l.audit, &models.AuditEvent{
		Action:    models.AuditWarningResolved,
		ActorID:   adminID.Hex(),
		Reason:    strings.TrimSpace(notes),
		Metadata:  map[string]any{"warningIds": hexIDs, "resolved": n},
		CreatedAt: now,
	})
	return n, nil
}

// UpdateWarning edits severity and/or message. The expiry set at creation
// is kept.
func (l *Ledger) UpdateWarning(ctx context.Context, id primitive.ObjectID, severity *models.Severity, message *string) (*models.Warning, error) {
	var sev models.Severity
	if severity != nil {
		if !severity.Valid() {
			return nil, apperrors.Validation("invalid severity %q", *severity)
		}
		sev = *severity
	}
	var msg string
	if message != nil {
		m, err := validateMessage(*message)
		if err != nil {
			return nil, err
		}
		msg = m
	}
	if sev == "" && msg == "" {
		return nil, apperrors.Validation("nothing to update")
	}
	return l.warnings.UpdateDetails(ctx, id, sev, msg, l.now())
}

func (l *Ledger) Get(ctx context.Context, id primitive.ObjectID) (*models.Warning, error) {
	return l.warnings.FindByID(ctx, id)
}

// ListByUser returns the user's warnings, newest first.
func (l *Ledger) ListByUser(ctx context.Context, userID primitive.ObjectID, filter repositories.WarningFilter) ([]*models.Warning, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.Validation("invalid status %q", filter.Status)
	}
	return l.warnings.FindByUser(ctx, userID, filter)
}

// ExpireSweep moves every active warning past its expiry to expired. It
// only ever moves state forward and is safe to repeat.
func (l *Ledger) ExpireSweep(ctx context.Context) (int64, error) {
	now := l.now()
	n, err := l.warnings.ExpireBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("moderation: expire sweep: %w", err)
	}
	if n > 0 {
		metrics.SweptRecords.WithLabelValues("warnings").Add(float64(n))
		repositories.RecordAudit(ctx, l.audit, &models.AuditEvent{
			Action:    models.AuditWarningsExpired,
			Reason:    "warning lifetime elapsed",
			Metadata:  map[string]any{"count": n},
			CreatedAt: now,
		})
	}
	return n, nil
}

// ResetUser resolves all of the user's open warnings and lifts any block
// together with its identifier bundle.
func (l *Ledger) ResetUser(ctx context.Context, userID, adminID primitive.ObjectID) (resolved int64, unblocked bool, err error) {
	if _, err := l.users.FindByID(ctx, userID); err != nil {
		return 0, false, err
	}

	resolved, err = l.warnings.ResolveAllForUser(ctx, userID, l.resolution(adminID, "warnings reset by admin", l.now()))
	if err != nil {
		return 0, false, fmt.Errorf("moderation: reset warnings: %w", err)
	}

	admin := adminID
	_, err = l.blocker.Unblock(ctx, userID, &admin, "warnings reset")
	switch {
	case errors.Is(err, apperrors.ErrNotBlocked):
	case err != nil:
		return resolved, false, err
	default:
		unblocked = true
	}

	log.Printf("[ledger] warnings reset user=%s admin=%s resolved=%d unblocked=%t",
		userID.Hex(), adminID.Hex(), resolved, unblocked)
	return resolved, unblocked, nil
}

// Stats computes the summary over the rolling window. ActiveTerms is left
// to the caller.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	now := l.now()
	since := l.policy.Since(now)
	var s Stats
	var err error

	if s.CurrentlyBlocked, err = l.blocker.CountBlocked(ctx); err != nil {
		return Stats{}, fmt.Errorf("moderation: stats blocked: %w", err)
	}

	s.BlocksLast30Days = -1
	if l.audit != nil {
		n, err := l.audit.CountSince(ctx, models.AuditUserBlocked, since)
		if err != nil {
			log.Printf("[ledger] stats: audit count failed, using user documents: %v", err)
		} else {
			s.BlocksLast30Days = int64(n)
		}
	}
	if s.BlocksLast30Days < 0 {
		if s.BlocksLast30Days, err = l.users.CountBlockedSince(ctx, since); err != nil {
			return Stats{}, fmt.Errorf("moderation: stats blocks: %w", err)
		}
	}

	if s.WarningsLast30Days, err = l.warnings.CountSince(ctx, since); err != nil {
		return Stats{}, fmt.Errorf("moderation: stats warnings: %w", err)
	}
	if s.RepeatOffenders, err = l.warnings.CountUsersWithAtLeast(ctx, since, RepeatOffenderThreshold); err != nil {
		return Stats{}, fmt.Errorf("moderation: stats offenders: %w", err)
	}
	return s, nil
}
