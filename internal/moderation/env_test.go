package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/whisper/moderation/internal/ban"
	"github.com/whisper/moderation/internal/lexicon"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories/memory"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// testEnv wires the engine over in-memory repositories with one shared,
// adjustable clock.
type testEnv struct {
	now      time.Time
	terms    *memory.TermRepository
	warnings *memory.WarningRepository
	users    *memory.UserRepository
	audit    *memory.AuditLog
	lexicon  *lexicon.Service
	bans     *ban.Manager
	scanner  *Scanner
	ledger   *Ledger
	engine   *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		now:      time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		terms:    memory.NewTermRepository(),
		warnings: memory.NewWarningRepository(),
		users:    memory.NewUserRepository(),
		audit:    memory.NewAuditLog(),
	}
	clock := func() time.Time { return env.now }

	env.lexicon = lexicon.NewService(env.terms, env.audit, nil)
	env.lexicon.SetClock(clock)
	env.bans = ban.NewManager(env.users, nil, env.audit, nil)
	env.bans.SetClock(clock)
	env.scanner = NewScanner(env.lexicon, time.Minute)
	env.scanner.now = clock
	env.lexicon.OnChange(env.scanner.Invalidate)
	env.ledger = NewLedger(env.warnings, env.users, env.bans, env.audit, DefaultWindow)
	env.ledger.SetClock(clock)
	env.engine = NewEngine(env.scanner, env.ledger, env.lexicon)
	return env
}

func (env *testEnv) advance(d time.Duration) { env.now = env.now.Add(d) }

func (env *testEnv) addTerm(t *testing.T, in lexicon.Input) *models.BannedTerm {
	t.Helper()
	term, err := env.lexicon.Create(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("create term %q: %v", in.Word, err)
	}
	return term
}

func (env *testEnv) addUser() primitive.ObjectID {
	u := &models.User{}
	env.users.Put(u)
	return u.ID
}
