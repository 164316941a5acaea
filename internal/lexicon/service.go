// Package lexicon manages the banned-term lexicon: admin create/update,
// soft deactivation, spelling normalisation and the cross-term uniqueness
// rule. Every change is broadcast so scanners can drop their compiled set.
package lexicon

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/messaging"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChangeEvent is published on moderation.lexicon.changed.
type ChangeEvent struct {
	TermID string `json:"term_id"`
	Action string `json:"action"` // "created", "updated", "activated", "deactivated"
	Ts     int64  `json:"ts"`
}

// Input is the admin payload for a new term.
type Input struct {
	Word               string
	Variations         []string
	Category           models.TermCategory
	Severity           models.Severity
	WarningMessage     string
	AutoBlockThreshold int
	BlockDurationHours int
}

// Patch carries the fields of an update; nil means unchanged.
type Patch struct {
	Word               *string
	Variations         []string // nil = unchanged, empty = clear
	Category           *models.TermCategory
	Severity           *models.Severity
	WarningMessage     *string
	AutoBlockThreshold *int
	BlockDurationHours *int
	IsActive           *bool
}

// Service is the Lexicon Store.
type Service struct {
	repo  repositories.TermRepository
	audit repositories.AuditLog
	pub   messaging.Publisher
	now   func() time.Time

	// writeMu serialises mutations in this process so the uniqueness check
	// and the write that follows it cannot interleave.
	writeMu sync.Mutex

	mu       sync.Mutex
	onChange []func()
}

// NewService creates a lexicon service. audit and pub may be nil.
func NewService(repo repositories.TermRepository, audit repositories.AuditLog, pub messaging.Publisher) *Service {
	return &Service{repo: repo, audit: audit, pub: pub, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// OnChange registers a hook run after every successful mutation in this
// process. Remote processes learn about changes through NATS.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Service) changed(ctx context.Context, term *models.BannedTerm, action string, actor *primitive.ObjectID) {
	s.mu.Lock()
	hooks := append([]func(){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	evt := ChangeEvent{TermID: term.ID.Hex(), Action: action, Ts: s.now().Unix()}
	if err := messaging.PublishJSON(s.pub, messaging.SubjectLexiconChanged, evt); err != nil {
		log.Printf("[lexicon] publish change term=%s: %v", evt.TermID, err)
	}

	auditAction := models.AuditTermUpdated
	if action == "created" {
		auditAction = models.AuditTermCreated
	}
	e := &models.AuditEvent{
		Action:    auditAction,
		Reason:    action,
		Metadata:  map[string]any{"termId": term.ID.Hex(), "word": term.Word, "isActive": term.IsActive},
		CreatedAt: s.now(),
	}
	if actor != nil {
		e.ActorID = actor.Hex()
	}
	repositories.RecordAudit(ctx, s.audit, e)
}

func (s *Service) checkUnique(ctx context.Context, term *models.BannedTerm) error {
	conflict, err := s.repo.FindConflicting(ctx, term.Spellings(), term.ID)
	if err != nil {
		return fmt.Errorf("lexicon: uniqueness check: %w", err)
	}
	if conflict != nil {
		return apperrors.Conflict(apperrors.ErrDuplicateTerm,
			"a spelling of %q is already used by banned word %q", term.Word, conflict.Word)
	}
	return nil
}

// reload re-reads term after a write so the caller sees the live violation
// counter. On a read failure the written copy is returned.
func (s *Service) reload(ctx context.Context, term *models.BannedTerm) *models.BannedTerm {
	fresh, err := s.repo.FindByID(ctx, term.ID)
	if err != nil {
		log.Printf("[lexicon] reload term=%s: %v", term.ID.Hex(), err)
		return term
	}
	return fresh
}

// Create validates and stores a new active term.
func (s *Service) Create(ctx context.Context, in Input, adminID *primitive.ObjectID) (*models.BannedTerm, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	term := &models.BannedTerm{
		Word:               in.Word,
		Variations:         in.Variations,
		Category:           in.Category,
		Severity:           in.Severity,
		WarningMessage:     in.WarningMessage,
		AutoBlockThreshold: in.AutoBlockThreshold,
		BlockDurationHours: in.BlockDurationHours,
		IsActive:           true,
		AddedBy:            adminID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := normalize(term); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, term); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, err
	}

	log.Printf("[lexicon] term created id=%s word=%q severity=%s threshold=%d",
		term.ID.Hex(), term.Word, term.Severity, term.AutoBlockThreshold)
	s.changed(ctx, term, "created", adminID)
	return term, nil
}

// Update applies a patch, re-validating the merged term.
func (s *Service) Update(ctx context.Context, id primitive.ObjectID, p Patch, adminID *primitive.ObjectID) (*models.BannedTerm, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Word != nil {
		term.Word = *p.Word
	}
	if p.Variations != nil {
		term.Variations = p.Variations
	}
	if p.Category != nil {
		term.Category = *p.Category
	}
	if p.Severity != nil {
		term.Severity = *p.Severity
	}
	if p.WarningMessage != nil {
		term.WarningMessage = *p.WarningMessage
	}
	if p.AutoBlockThreshold != nil {
		if *p.AutoBlockThreshold == 0 {
			return nil, apperrors.Validation("autoBlockThreshold must be between %d and %d",
				models.MinAutoBlockThreshold, models.MaxAutoBlockThreshold)
		}
		term.AutoBlockThreshold = *p.AutoBlockThreshold
	}
	if p.BlockDurationHours != nil {
		if *p.BlockDurationHours == 0 {
			return nil, apperrors.Validation("blockDurationHours must be between %d and %d",
				models.MinBlockDurationHours, models.MaxBlockDurationHours)
		}
		term.BlockDurationHours = *p.BlockDurationHours
	}
	if p.IsActive != nil {
		term.IsActive = *p.IsActive
	}

	if err := normalize(term); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, term); err != nil {
		return nil, err
	}
	term.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, term); err != nil {
		return nil, err
	}
	term = s.reload(ctx, term)

	s.changed(ctx, term, "updated", adminID)
	return term, nil
}

func (s *Service) setActive(ctx context.Context, id primitive.ObjectID, active bool, adminID *primitive.ObjectID) (*models.BannedTerm, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if term.IsActive == active {
		return term, nil
	}
	term.IsActive = active
	term.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, term); err != nil {
		return nil, err
	}
	term = s.reload(ctx, term)

	action := "deactivated"
	if active {
		action = "activated"
	}
	log.Printf("[lexicon] term %s id=%s word=%q", action, term.ID.Hex(), term.Word)
	s.changed(ctx, term, action, adminID)
	return term, nil
}

// Deactivate is the soft-delete path: the term leaves future scans but
// keeps its violation history.
func (s *Service) Deactivate(ctx context.Context, id primitive.ObjectID, adminID *primitive.ObjectID) (*models.BannedTerm, error) {
	return s.setActive(ctx, id, false, adminID)
}

// Activate returns a deactivated term to the scanner.
func (s *Service) Activate(ctx context.Context, id primitive.ObjectID, adminID *primitive.ObjectID) (*models.BannedTerm, error) {
	return s.setActive(ctx, id, true, adminID)
}

func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*models.BannedTerm, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter repositories.TermFilter) ([]*models.BannedTerm, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, apperrors.Validation("invalid category %q", filter.Category)
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return nil, apperrors.Validation("invalid severity %q", filter.Severity)
	}
	return s.repo.FindAll(ctx, filter)
}

// Active returns the active terms in storage order. It is the scanner's
// source of truth.
func (s *Service) Active(ctx context.Context) ([]*models.BannedTerm, error) {
	return s.repo.FindAll(ctx, repositories.TermFilter{ActiveOnly: true})
}

// RecordViolation bumps the term's counter atomically.
func (s *Service) RecordViolation(ctx context.Context, id primitive.ObjectID) error {
	return s.repo.IncrementViolation(ctx, id, s.now())
}

func (s *Service) CountActive(ctx context.Context) (int64, error) {
	return s.repo.CountActive(ctx)
}
