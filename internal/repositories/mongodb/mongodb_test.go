package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// newTestDB connects to a local MongoDB and returns a throwaway database
// that is dropped when the test ends. Tests that call this helper require a
// running MongoDB on localhost:27017.
func newTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()
	client, err := Connect(ctx, "mongodb://localhost:27017")
	if err != nil {
		t.Skipf("mongodb not available: %v", err)
	}
	db := client.Database(fmt.Sprintf("moderation_test_%d", time.Now().UnixNano()))
	if err := EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("EnsureIndexes() error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestTermRepository_ConflictsAndIncrement(t *testing.T) {
	db := newTestDB(t)
	repo := NewTermRepository(db)
	ctx := context.Background()

	term := &models.BannedTerm{Word: "spam", Variations: []string{"sp4m"}, Severity: models.SeverityMedium, IsActive: true}
	if err := repo.Create(ctx, term); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := repo.Create(ctx, &models.BannedTerm{Word: "spam"}); !errors.Is(err, apperrors.ErrDuplicateTerm) {
		t.Errorf("duplicate Create() error = %v, want ErrDuplicateTerm", err)
	}

	conflict, err := repo.FindConflicting(ctx, []string{"sp4m"}, primitive.NilObjectID)
	if err != nil {
		t.Fatalf("FindConflicting() error: %v", err)
	}
	if conflict == nil || conflict.ID != term.ID {
		t.Errorf("FindConflicting() = %v, want term %s", conflict, term.ID.Hex())
	}
	conflict, err = repo.FindConflicting(ctx, []string{"sp4m"}, term.ID)
	if err != nil || conflict != nil {
		t.Errorf("FindConflicting(excluding self) = %v, %v; want nil, nil", conflict, err)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := repo.IncrementViolation(ctx, term.ID, at); err != nil {
			t.Fatalf("IncrementViolation() error: %v", err)
		}
	}
	got, err := repo.FindByID(ctx, term.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got.ViolationCount != 3 {
		t.Errorf("ViolationCount = %d, want 3", got.ViolationCount)
	}

	// term was read before the increments; writing it back must not reset them.
	term.IsActive = false
	term.Severity = models.SeverityHigh
	if err := repo.Update(ctx, term); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	got, err = repo.FindByID(ctx, term.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got.ViolationCount != 3 || got.LastViolation == nil {
		t.Errorf("after Update ViolationCount = %d LastViolation = %v, want 3 and set", got.ViolationCount, got.LastViolation)
	}
	if got.IsActive || got.Severity != models.SeverityHigh {
		t.Errorf("after Update active=%v severity=%q", got.IsActive, got.Severity)
	}
	if err := repo.Update(ctx, &models.BannedTerm{ID: primitive.NewObjectID(), Word: "ghost"}); !errors.Is(err, apperrors.ErrTermNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrTermNotFound", err)
	}
}

func TestWarningRepository_RollingCountAndTransition(t *testing.T) {
	db := newTestDB(t)
	repo := NewWarningRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := primitive.NewObjectID()

	old := &models.Warning{User: user, Status: models.WarningActive, CreatedAt: now.Add(-31 * 24 * time.Hour)}
	recent := &models.Warning{User: user, Status: models.WarningActive, CreatedAt: now.Add(-time.Hour)}
	expired := &models.Warning{User: user, Status: models.WarningExpired, CreatedAt: now.Add(-time.Hour)}
	for _, w := range []*models.Warning{old, recent, expired} {
		if err := repo.Create(ctx, w); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	n, err := repo.CountRolling(ctx, user, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("CountRolling() error: %v", err)
	}
	if n != 1 {
		t.Errorf("CountRolling() = %d, want 1", n)
	}

	update := repositories.WarningUpdate{Status: models.WarningResolved, UpdatedAt: now}
	if _, ok, err := repo.Transition(ctx, expired.ID, []models.WarningStatus{models.WarningActive}, update); err != nil || ok {
		t.Errorf("Transition(expired) = ok=%v err=%v, want guard failure", ok, err)
	}
	if _, _, err := repo.Transition(ctx, primitive.NewObjectID(), []models.WarningStatus{models.WarningActive}, update); !errors.Is(err, apperrors.ErrWarningNotFound) {
		t.Errorf("Transition(missing) error = %v, want ErrWarningNotFound", err)
	}
}

func TestUserRepository_RestrictionLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	blocked := primitive.NewObjectID()
	other := primitive.NewObjectID()
	if _, err := db.Collection(CollectionUsers).InsertMany(ctx, []any{
		bson.M{"_id": blocked, "phone": "+15550001", "lastLoginIp": "1.2.3.4"},
		bson.M{"_id": other, "phone": "+15550002"},
	}); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	until := now.Add(24 * time.Hour)
	rs := models.Restriction{
		BlockedUntil: &until,
		BlockedAt:    &now,
		Reason:       "test",
		Origin:       models.BlockManual,
		BlockedIdentifiers: &models.BlockedIdentifiers{
			Phone: "+15550001", IPs: []string{"1.2.3.4"}, DeviceIDs: []string{},
		},
	}
	if _, err := repo.ApplyRestriction(ctx, blocked, rs, now); err != nil {
		t.Fatalf("ApplyRestriction() error: %v", err)
	}
	if _, err := repo.ApplyRestriction(ctx, blocked, rs, now); !errors.Is(err, apperrors.ErrAlreadyBlocked) {
		t.Errorf("second ApplyRestriction() error = %v, want ErrAlreadyBlocked", err)
	}

	hit, err := repo.BlockedIdentifierExists(ctx, repositories.IdentityQuery{ExcludeUserID: other, IP: "1.2.3.4"}, now)
	if err != nil || !hit {
		t.Errorf("BlockedIdentifierExists(ip) = %v, %v; want true", hit, err)
	}

	u, err := repo.ClearRestriction(ctx, blocked, now)
	if err != nil {
		t.Fatalf("ClearRestriction() error: %v", err)
	}
	if u.IsBlocked || u.BlockedIdentifiers != nil {
		t.Errorf("after ClearRestriction: isBlocked=%v identifiers=%v", u.IsBlocked, u.BlockedIdentifiers)
	}
	if _, err := repo.ClearRestriction(ctx, blocked, now); !errors.Is(err, apperrors.ErrNotBlocked) {
		t.Errorf("second ClearRestriction() error = %v, want ErrNotBlocked", err)
	}
}
