package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/ban"
	"github.com/whisper/moderation/internal/jobs"
	"github.com/whisper/moderation/internal/lexicon"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/moderation"
	"github.com/whisper/moderation/internal/repositories/memory"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

type apiEnv struct {
	t      *testing.T
	router *gin.Engine
	users  *memory.UserRepository
	admin  string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	terms := memory.NewTermRepository()
	warnings := memory.NewWarningRepository()
	users := memory.NewUserRepository()
	audit := memory.NewAuditLog()

	lex := lexicon.NewService(terms, audit, nil)
	bans := ban.NewManager(users, nil, audit, nil)
	scanner := moderation.NewScanner(lex, time.Minute)
	lex.OnChange(scanner.Invalidate)
	ledger := moderation.NewLedger(warnings, users, bans, audit, moderation.DefaultWindow)
	engine := moderation.NewEngine(scanner, ledger, lex)

	router := NewRouter(Deps{
		Lexicon:   lex,
		Bans:      bans,
		Engine:    engine,
		Sweeper:   jobs.NewSweeper(engine, bans, time.Hour),
		Audit:     audit,
		JWTSecret: testSecret,
	}, NewAdminLimiter(1000, 1000))

	env := &apiEnv{t: t, router: router, users: users}
	env.admin = env.token(primitive.NewObjectID().Hex(), RoleAdmin)
	return env
}

func (env *apiEnv) token(subject, role string) string {
	env.t.Helper()
	tok, err := SignToken([]byte(testSecret), subject, role, time.Hour)
	if err != nil {
		env.t.Fatalf("SignToken() error: %v", err)
	}
	return tok
}

func (env *apiEnv) addUser() primitive.ObjectID {
	u := &models.User{Phone: "+15550001111"}
	env.users.Put(u)
	return u.ID
}

func (env *apiEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestAuth(t *testing.T) {
	env := newAPIEnv(t)
	userTok := env.token(primitive.NewObjectID().Hex(), RoleUser)
	expired, _ := SignToken([]byte(testSecret), "x", RoleAdmin, -time.Minute)
	forged, _ := SignToken([]byte("other-secret"), "x", RoleAdmin, time.Hour)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"missing token", http.MethodGet, "/api/v1/admin/banned-words", "", http.StatusUnauthorized},
		{"expired token", http.MethodGet, "/api/v1/admin/banned-words", expired, http.StatusUnauthorized},
		{"wrong secret", http.MethodGet, "/api/v1/admin/banned-words", forged, http.StatusUnauthorized},
		{"user on admin route", http.MethodGet, "/api/v1/admin/banned-words", userTok, http.StatusForbidden},
		{"user on service route", http.MethodPost, "/api/v1/moderation/messages/scan", userTok, http.StatusForbidden},
		{"admin", http.MethodGet, "/api/v1/admin/banned-words", env.admin, http.StatusOK},
		{"user on own warnings", http.MethodGet, "/api/v1/moderation/me/warnings", userTok, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.token, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestScan_EscalatesToBlock(t *testing.T) {
	env := newAPIEnv(t)
	svc := env.token(primitive.NewObjectID().Hex(), RoleService)
	uid := env.addUser()

	w := env.do(http.MethodPost, "/api/v1/admin/banned-words", env.admin, map[string]any{
		"word":       "darn",
		"variations": []string{"d4rn"},
		"severity":   "medium",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create term status = %d: %s", w.Code, w.Body.String())
	}

	scan := map[string]string{"userId": uid.Hex(), "text": "well D4RN it"}
	for i := 1; i <= 3; i++ {
		w = env.do(http.MethodPost, "/api/v1/moderation/messages/scan", svc, scan)
		if w.Code != http.StatusOK {
			t.Fatalf("scan #%d status = %d: %s", i, w.Code, w.Body.String())
		}
		res := decode[moderation.ModerationResult](t, w)
		if !res.Flagged || res.WarningID == "" {
			t.Fatalf("scan #%d = %+v, want flagged with a warning", i, res)
		}
		if res.MaskedText != "well **** it" {
			t.Errorf("scan #%d masked = %q", i, res.MaskedText)
		}
		if strings.Contains(w.Body.String(), "d4rn") {
			t.Errorf("scan #%d leaks the matched spelling: %s", i, w.Body.String())
		}
		if wantBlocked := i == 3; res.Blocked != wantBlocked {
			t.Errorf("scan #%d blocked = %t, want %t", i, res.Blocked, wantBlocked)
		}
	}

	w = env.do(http.MethodPost, "/api/v1/moderation/messages/scan", svc, scan)
	if w.Code != http.StatusForbidden {
		t.Fatalf("scan while blocked status = %d, want 403", w.Code)
	}
	d := decode[ban.Decision](t, w)
	if d.Allowed || d.BlockedUntil == nil || d.Message == "" {
		t.Errorf("decision = %+v, want denial with unblock time", d)
	}

	w = env.do(http.MethodGet, "/api/v1/moderation/users/"+uid.Hex()+"/can-send", svc, nil)
	if w.Code != http.StatusOK || decode[ban.Decision](t, w).Allowed {
		t.Errorf("can-send = %d %s, want denied", w.Code, w.Body.String())
	}
}

func TestScan_CleanAndInvalid(t *testing.T) {
	env := newAPIEnv(t)
	svc := env.token(primitive.NewObjectID().Hex(), RoleService)
	uid := env.addUser()

	w := env.do(http.MethodPost, "/api/v1/moderation/messages/scan", svc,
		map[string]string{"userId": uid.Hex(), "text": "hello there"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if res := decode[moderation.ModerationResult](t, w); res.Flagged || res.MaskedText != "hello there" {
		t.Errorf("clean scan = %+v", res)
	}

	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad user id", map[string]string{"userId": "nope", "text": "hi"}},
		{"empty text", map[string]string{"userId": uid.Hex(), "text": "   "}},
		{"bad chat id", map[string]string{"userId": uid.Hex(), "chatId": "zz", "text": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(http.MethodPost, "/api/v1/moderation/messages/scan", svc, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestAppeal(t *testing.T) {
	env := newAPIEnv(t)
	uid := env.addUser()
	owner := env.token(uid.Hex(), RoleUser)
	stranger := env.token(primitive.NewObjectID().Hex(), RoleUser)

	w := env.do(http.MethodPost, "/api/v1/admin/warnings", env.admin, map[string]string{
		"userId":         uid.Hex(),
		"warningType":    "harassment",
		"severity":       "high",
		"warningMessage": "Please keep it respectful.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("issue warning status = %d: %s", w.Code, w.Body.String())
	}
	warning := decode[models.Warning](t, w)
	path := "/api/v1/moderation/warnings/" + warning.ID.Hex() + "/appeal"

	if w := env.do(http.MethodPost, path, owner, map[string]string{"reason": "too short"}); w.Code != http.StatusBadRequest {
		t.Errorf("short reason status = %d, want 400", w.Code)
	}
	if w := env.do(http.MethodPost, path, stranger, map[string]string{"reason": "this was not me at all"}); w.Code != http.StatusNotFound {
		t.Errorf("stranger appeal status = %d, want 404", w.Code)
	}
	w = env.do(http.MethodPost, path, owner, map[string]string{"reason": "this was not me at all"})
	if w.Code != http.StatusOK {
		t.Fatalf("appeal status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[models.Warning](t, w).Status; got != models.WarningAppealed {
		t.Errorf("status after appeal = %q", got)
	}
	if w := env.do(http.MethodPost, path, owner, map[string]string{"reason": "appealing once more"}); w.Code != http.StatusConflict {
		t.Errorf("second appeal status = %d, want 409", w.Code)
	}

	w = env.do(http.MethodPost, "/api/v1/admin/warnings/"+warning.ID.Hex()+"/resolve", env.admin, map[string]string{"notes": "upheld"})
	if w.Code != http.StatusOK || decode[models.Warning](t, w).Status != models.WarningResolved {
		t.Errorf("resolve = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/v1/moderation/me/warnings", owner, nil)
	body := decode[struct {
		Warnings []models.Warning `json:"warnings"`
		Count    int              `json:"count"`
	}](t, w)
	if body.Count != 1 || body.Warnings[0].ID != warning.ID {
		t.Errorf("my warnings = %+v", body)
	}
}

func TestAdminBlockLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	uid := env.addUser()
	base := "/api/v1/admin/users/" + uid.Hex()

	w := env.do(http.MethodPost, base+"/block", env.admin, map[string]any{
		"reason":        "scam links",
		"durationHours": 48,
		"fullBlock":     true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("block status = %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodPost, base+"/block", env.admin, map[string]any{"reason": "again", "durationHours": 1}); w.Code != http.StatusConflict {
		t.Errorf("second block status = %d, want 409", w.Code)
	}

	svc := env.token(primitive.NewObjectID().Hex(), RoleService)
	w = env.do(http.MethodPost, "/api/v1/moderation/login-check", svc, map[string]string{"phone": "+15550001111"})
	if d := decode[ban.Decision](t, w); d.Allowed || !d.Evasion {
		t.Errorf("login-check with blocked phone = %+v, want evasion denial", d)
	}

	w = env.do(http.MethodGet, base+"/restriction", env.admin, nil)
	if r := decode[models.Restriction](t, w); !r.IsBlocked || r.BlockedIdentifiers == nil {
		t.Errorf("restriction = %+v", r)
	}

	if w := env.do(http.MethodPost, base+"/unblock", env.admin, map[string]string{"reason": "appeal accepted"}); w.Code != http.StatusOK {
		t.Errorf("unblock status = %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodPost, base+"/unblock", env.admin, nil); w.Code != http.StatusConflict {
		t.Errorf("second unblock status = %d, want 409", w.Code)
	}

	w = env.do(http.MethodGet, base+"/audit", env.admin, nil)
	audit := decode[struct {
		Events []models.AuditEvent `json:"events"`
	}](t, w)
	if len(audit.Events) != 2 {
		t.Errorf("audit events = %d, want block and unblock", len(audit.Events))
	}

	if w := env.do(http.MethodPost, "/api/v1/admin/users/nothex/block", env.admin, map[string]any{"reason": "x", "durationHours": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", w.Code)
	}
	missing := primitive.NewObjectID().Hex()
	if w := env.do(http.MethodPost, "/api/v1/admin/users/"+missing+"/block", env.admin, map[string]any{"reason": "x", "durationHours": 1}); w.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", w.Code)
	}
}

func TestLoginCheck_FallsBackToClientIP(t *testing.T) {
	env := newAPIEnv(t)
	// httptest requests arrive from 192.0.2.1.
	blocked := &models.User{LastLoginIP: "192.0.2.1", LastDeviceID: "dev-blocked"}
	env.users.Put(blocked)

	w := env.do(http.MethodPost, "/api/v1/admin/users/"+blocked.ID.Hex()+"/block", env.admin, map[string]any{
		"reason":        "ban evasion ring",
		"durationHours": 24,
		"fullBlock":     true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("block status = %d: %s", w.Code, w.Body.String())
	}

	svc := env.token(primitive.NewObjectID().Hex(), RoleService)
	tests := []struct {
		name        string
		body        map[string]string
		wantEvasion bool
	}{
		{"no ip in body", map[string]string{"deviceId": "dev-fresh"}, true},
		{"explicit other ip", map[string]string{"deviceId": "dev-fresh", "ip": "198.51.100.7"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/moderation/login-check", svc, tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			d := decode[ban.Decision](t, w)
			if d.Evasion != tt.wantEvasion || d.Allowed == tt.wantEvasion {
				t.Errorf("decision = %+v, want evasion=%v", d, tt.wantEvasion)
			}
		})
	}
}

func TestBannedWordsAdmin(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(http.MethodPost, "/api/v1/admin/banned-words", env.admin, map[string]any{"word": "Heck", "category": "profanity"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	term := decode[models.BannedTerm](t, w)
	if term.Word != "heck" || term.AutoBlockThreshold != models.DefaultAutoBlockThreshold {
		t.Errorf("created term = %+v", term)
	}

	if w := env.do(http.MethodPost, "/api/v1/admin/banned-words", env.admin, map[string]any{"word": "other", "variations": []string{"HECK"}}); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/v1/admin/banned-words", env.admin, map[string]any{"word": "x", "severity": "extreme"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid severity status = %d, want 400", w.Code)
	}

	path := "/api/v1/admin/banned-words/" + term.ID.Hex()
	w = env.do(http.MethodPut, path, env.admin, map[string]any{"autoBlockThreshold": 5})
	if w.Code != http.StatusOK || decode[models.BannedTerm](t, w).AutoBlockThreshold != 5 {
		t.Errorf("update = %d %s", w.Code, w.Body.String())
	}
	w = env.do(http.MethodDelete, path, env.admin, nil)
	if w.Code != http.StatusOK || decode[models.BannedTerm](t, w).IsActive {
		t.Errorf("deactivate = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/v1/admin/banned-words?activeOnly=true", env.admin, nil)
	if got := decode[struct {
		Count int `json:"count"`
	}](t, w).Count; got != 0 {
		t.Errorf("active count after deactivate = %d, want 0", got)
	}

	w = env.do(http.MethodPost, path+"/activate", env.admin, nil)
	if w.Code != http.StatusOK || !decode[models.BannedTerm](t, w).IsActive {
		t.Errorf("activate = %d %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodGet, "/api/v1/admin/banned-words/"+primitive.NewObjectID().Hex(), env.admin, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing term status = %d, want 404", w.Code)
	}
}

func TestStatsAndSweep(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(http.MethodGet, "/api/v1/admin/moderation/stats", env.admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d: %s", w.Code, w.Body.String())
	}
	if s := decode[moderation.Stats](t, w); s.CurrentlyBlocked != 0 || s.WarningsLast30Days != 0 {
		t.Errorf("stats = %+v", s)
	}

	w = env.do(http.MethodPost, "/api/v1/admin/moderation/sweep", env.admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep status = %d: %s", w.Code, w.Body.String())
	}
	if res := decode[jobs.SweepResult](t, w); res.WarningsExpired != 0 || res.BlocksCleared != 0 {
		t.Errorf("sweep = %+v", res)
	}
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newAPIEnv(t)
	if w := env.do(http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}

	h := &Handler{ready: func(context.Context) error { return errors.New("mongo down") }}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.Health(c)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("unready healthz = %d, want 503", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.Validation("bad"), http.StatusBadRequest},
		{apperrors.ErrUserNotFound, http.StatusNotFound},
		{apperrors.ErrAlreadyBlocked, http.StatusConflict},
		{apperrors.ErrCannotAppeal, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAdminLimiter(t *testing.T) {
	l := NewAdminLimiter(1, 2)
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 not allowed")
	}
	if l.Allow("a") {
		t.Error("third request within burst allowed")
	}
	if !l.Allow("b") {
		t.Error("other admin throttled")
	}
}
