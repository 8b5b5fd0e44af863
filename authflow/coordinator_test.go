package authflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/accountguard/credential"
	"github.com/kbukum/accountguard/cryptotier"
	"github.com/kbukum/accountguard/diagnostics"
	"github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/guardian"
	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/store"
)

const testPassword = "correct horse 1"

func newTestCoordinator(t *testing.T, cfg Config, opts ...Option) *Coordinator {
	t.Helper()

	st, err := store.New(store.Config{BasePath: t.TempDir()}, guardian.New(logger.Nop()), logger.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, dir := range store.MandatoryDirs() {
		if err := os.MkdirAll(filepath.Join(st.BasePath(), dir), 0o750); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if _, err := st.EnsureRegistry(context.Background()); err != nil {
		t.Fatalf("registry: %v", err)
	}

	neg := cryptotier.New(logger.Nop())
	hasher, _ := credential.NewHasher(neg, credential.Config{}, logger.Nop())

	coord, _, err := NewCoordinator(cfg, st, hasher, neg, nil, nil, logger.Nop(), opts...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return coord
}

func TestRegisterThenLogin(t *testing.T) {
	c := newTestCoordinator(t, DefaultConfig())
	ctx := context.Background()

	reg, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Address == "" || reg.Token == "" {
		t.Fatalf("registration must yield address and token: %+v", reg)
	}
	if len(reg.RecoveryPhrase) == 0 {
		t.Fatal("registration must yield a recovery phrase")
	}

	login, err := c.Login(ctx, LoginRequest{Username: "Alice", Password: testPassword})
	if err != nil {
		t.Fatalf("login with case-folded username: %v", err)
	}
	if login.Address != reg.Address {
		t.Errorf("expected address %s, got %s", reg.Address, login.Address)
	}
	if login.SecondFactorRequired {
		t.Error("regular accounts must not require a second factor")
	}

	claims, err := c.ParseToken(login.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != reg.Address || claims.Username != "alice" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if sess, ok := c.Sessions().Get(login.SessionID); !ok || sess.CurrentStage() != diagnostics.StageComplete {
		t.Errorf("completed login session must reach the complete stage, got %v", sess)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	c := newTestCoordinator(t, DefaultConfig())
	ctx := context.Background()

	if _, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := c.Register(ctx, RegisterRequest{Username: "ALICE", Password: testPassword})
	if !errors.IsCode(err, errors.ErrCodeAlreadyExists) {
		t.Fatalf("expected ALREADY_EXISTS, got %v", err)
	}
}

func TestLogin_WrongPasswordCountsDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lockout.MaxAttempts = 3
	c := newTestCoordinator(t, cfg)
	ctx := context.Background()

	if _, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Attempts 1 and 2 fail with INVALID_CREDENTIALS and a decreasing
	// attempts_left detail.
	for i, wantLeft := range []int{2, 1} {
		_, err := c.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
		appErr := errors.As(err)
		if appErr == nil || appErr.Code != errors.ErrCodeInvalidCredentials {
			t.Fatalf("attempt %d: expected INVALID_CREDENTIALS, got %v", i+1, err)
		}
		if got := appErr.Details["attempts_left"]; got != wantLeft {
			t.Errorf("attempt %d: expected %d attempts left, got %v", i+1, wantLeft, got)
		}
	}

	// The third failure is the one that locks.
	_, err := c.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	if !errors.IsCode(err, errors.ErrCodeLocked) {
		t.Fatalf("expected LOCKED on the final attempt, got %v", err)
	}

	// Even the right password is refused while locked.
	_, err = c.Login(ctx, LoginRequest{Username: "alice", Password: testPassword})
	if !errors.IsCode(err, errors.ErrCodeLocked) {
		t.Fatalf("expected LOCKED with correct password, got %v", err)
	}
}

func TestLogin_UnknownUsernameNotFound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lockout.MaxAttempts = 2
	c := newTestCoordinator(t, cfg)
	ctx := context.Background()

	// An absent identifier is NOT_FOUND every time; it never trips a lockout.
	for i := 0; i < 3; i++ {
		_, err := c.Login(ctx, LoginRequest{Username: "nobody", Password: "x"})
		if !errors.IsCode(err, errors.ErrCodeNotFound) {
			t.Fatalf("attempt %d: expected NOT_FOUND, got %v", i+1, err)
		}
	}
}

func TestLogin_SuccessResetsLockout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lockout.MaxAttempts = 3
	c := newTestCoordinator(t, cfg)
	ctx := context.Background()

	if _, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _ = c.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	}
	if _, err := c.Login(ctx, LoginRequest{Username: "alice", Password: testPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The counter is back at zero: two more failures stay short of the limit.
	for i := 0; i < 2; i++ {
		_, err := c.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
		if !errors.IsCode(err, errors.ErrCodeInvalidCredentials) {
			t.Fatalf("failure %d after reset: expected INVALID_CREDENTIALS, got %v", i+1, err)
		}
	}
}

func TestSecondFactor_FounderFlow(t *testing.T) {
	var delivered string
	c := newTestCoordinator(t, DefaultConfig(), WithCodeDelivery(func(_, code string) {
		delivered = code
	}))
	ctx := context.Background()

	if _, err := c.Register(ctx, RegisterRequest{Username: "founder", Password: testPassword, Founder: true}); err != nil {
		t.Fatalf("register: %v", err)
	}

	login, err := c.Login(ctx, LoginRequest{Username: "founder", Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !login.SecondFactorRequired || login.Token != "" {
		t.Fatalf("founder login must defer the token to the second factor: %+v", login)
	}
	if len(delivered) != 6 {
		t.Fatalf("expected a delivered six-digit code, got %q", delivered)
	}
	if sess, ok := c.Sessions().Get(login.SessionID); !ok || sess.CurrentStage() != diagnostics.StageSecurityCode {
		t.Errorf("pending founder login must hold at the security-code stage, got %v", sess)
	}

	// A wrong code costs an attempt but keeps the challenge open.
	wrong := "000000"
	if wrong == delivered {
		wrong = "000001"
	}
	if _, err := c.VerifySecondFactor(ctx, login.SessionID, wrong); !errors.IsCode(err, errors.ErrCodeInvalidCredentials) {
		t.Fatalf("expected INVALID_CREDENTIALS for wrong code, got %v", err)
	}

	done, err := c.VerifySecondFactor(ctx, login.SessionID, delivered)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if done.Token == "" {
		t.Fatal("completed second factor must yield a token")
	}
	if sess, ok := c.Sessions().Get(login.SessionID); !ok || sess.CurrentStage() != diagnostics.StageComplete {
		t.Errorf("answered challenge must advance the session to complete, got %v", sess)
	}

	// The challenge is single-use.
	if _, err := c.VerifySecondFactor(ctx, login.SessionID, delivered); !errors.IsCode(err, errors.ErrCodeSessionExpired) {
		t.Fatalf("expected SESSION_EXPIRED on replay, got %v", err)
	}
}

func TestSecondFactor_UnknownSession(t *testing.T) {
	c := newTestCoordinator(t, DefaultConfig())
	if _, err := c.VerifySecondFactor(context.Background(), "no-such-session", "123456"); !errors.IsCode(err, errors.ErrCodeSessionExpired) {
		t.Fatalf("expected SESSION_EXPIRED, got %v", err)
	}
}

func TestRecover_RotatesPhraseAndPassword(t *testing.T) {
	c := newTestCoordinator(t, DefaultConfig())
	ctx := context.Background()

	reg, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	const newPassword = "brand new horse 2"
	rec, err := c.Recover(ctx, RecoverRequest{RecoveryPhrase: reg.RecoveryPhrase, Password: testPassword, NewPassword: newPassword})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rec.Address != reg.Address {
		t.Errorf("expected address %s, got %s", reg.Address, rec.Address)
	}
	if rec.RecoveryPhrase == reg.RecoveryPhrase {
		t.Error("recovery must rotate the phrase")
	}

	if _, err := c.Login(ctx, LoginRequest{Username: "alice", Password: testPassword}); err == nil {
		t.Error("old password must stop working after recovery")
	}
	if _, err := c.Login(ctx, LoginRequest{Username: "alice", Password: newPassword}); err != nil {
		t.Errorf("new password must work after recovery: %v", err)
	}

	// The spent phrase cannot be replayed.
	_, err = c.Recover(ctx, RecoverRequest{RecoveryPhrase: reg.RecoveryPhrase, Password: newPassword, NewPassword: "another pass 3"})
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND for spent phrase, got %v", err)
	}
}

func TestRecover_WrongPasswordCountsTowardLockout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lockout.MaxAttempts = 2
	c := newTestCoordinator(t, cfg)
	ctx := context.Background()

	reg, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	req := RecoverRequest{RecoveryPhrase: reg.RecoveryPhrase, Password: "wrong", NewPassword: "brand new horse 2"}
	if _, err := c.Recover(ctx, req); !errors.IsCode(err, errors.ErrCodeInvalidCredentials) {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
	}
	if _, err := c.Recover(ctx, req); !errors.IsCode(err, errors.ErrCodeLocked) {
		t.Fatalf("expected LOCKED on the threshold attempt, got %v", err)
	}

	// The lockout is shared with login; even the right password is refused.
	if _, err := c.Login(ctx, LoginRequest{Username: "alice", Password: testPassword}); !errors.IsCode(err, errors.ErrCodeLocked) {
		t.Fatalf("expected LOCKED at login while locked, got %v", err)
	}
}

func TestRecover_PersistsRepairAndWarns(t *testing.T) {
	c := newTestCoordinator(t, DefaultConfig())
	ctx := context.Background()

	reg, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Truncate the stored contacts collection directly on disk.
	path := filepath.Join(c.store.BasePath(), store.DirUsers, reg.Address+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	doc["contacts"] = "truncated"
	data, err = json.Marshal(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec, err := c.Recover(ctx, RecoverRequest{RecoveryPhrase: reg.RecoveryPhrase, Password: testPassword, NewPassword: "brand new horse 2"})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	repaired := false
	for _, w := range rec.Warnings {
		if strings.Contains(w, "repaired") && strings.Contains(w, "contacts") {
			repaired = true
		}
	}
	if !repaired {
		t.Fatalf("expected a repair warning naming contacts, got %v", rec.Warnings)
	}

	// The repaired form reached disk: the next load is clean.
	_, report, err := c.store.Load(ctx, reg.Address)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(report.FixedFields) != 0 {
		t.Errorf("repair must be persisted, next load still fixed %v", report.FixedFields)
	}
}

func TestRecover_RejectsPasswordReuse(t *testing.T) {
	c := newTestCoordinator(t, DefaultConfig())
	ctx := context.Background()

	reg, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = c.Recover(ctx, RecoverRequest{RecoveryPhrase: reg.RecoveryPhrase, Password: testPassword, NewPassword: testPassword})
	if !errors.IsCode(err, errors.ErrCodeInvalidCredentials) {
		t.Fatalf("expected INVALID_CREDENTIALS for reused password, got %v", err)
	}
}

func TestLogin_BumpsCounters(t *testing.T) {
	c := newTestCoordinator(t, DefaultConfig())
	ctx := context.Background()

	reg, err := c.Register(ctx, RegisterRequest{Username: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := c.Login(ctx, LoginRequest{Username: "alice", Password: testPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := c.Login(ctx, LoginRequest{Username: "alice", Password: testPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}

	stored, _, err := c.store.Load(ctx, reg.Address)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.LoginCount != 2 {
		t.Errorf("expected login_count 2, got %d", stored.LoginCount)
	}
}

func TestParseToken_Tampered(t *testing.T) {
	c := newTestCoordinator(t, DefaultConfig())
	token, err := c.issueToken("acct-1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.ParseToken(token + "x"); !errors.IsCode(err, errors.ErrCodeInvalidCredentials) {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
	}
}

func TestLockoutTable_ProgressiveDoubling(t *testing.T) {
	table := newLockoutTable(LockoutConfig{MaxAttempts: 1, LockoutDurationMs: 1000, ProgressiveLockout: true})
	now := time.Now()
	table.now = func() time.Time { return now }

	locked, first := table.fail("alice")
	if !locked || first != time.Second {
		t.Fatalf("expected 1s lockout, got locked=%v %v", locked, first)
	}
	now = now.Add(2 * time.Second)
	locked, second := table.fail("alice")
	if !locked || second != 2*time.Second {
		t.Fatalf("expected doubled 2s lockout, got locked=%v %v", locked, second)
	}
	table.reset("alice")
	locked, third := table.fail("alice")
	if !locked || third != time.Second {
		t.Fatalf("reset must clear progression, got locked=%v %v", locked, third)
	}
}

func TestLockoutTable_SweepEvictsIdleEntries(t *testing.T) {
	cfg := LockoutConfig{MaxAttempts: 3, LockoutDurationMs: 3600000, StateTTLMinutes: 30}
	table := newLockoutTable(cfg)
	now := time.Now()
	table.now = func() time.Time { return now }

	table.fail("idle")
	table.fail("locked")
	table.fail("locked")
	table.fail("locked") // reaches the threshold, locks for an hour

	if removed := table.sweep(now); removed != 0 {
		t.Fatalf("fresh entries must survive the sweep, removed %d", removed)
	}

	// Past the idle TTL: the unlocked entry goes, the locked one stays.
	now = now.Add(31 * time.Minute)
	if removed := table.sweep(now); removed != 1 {
		t.Fatalf("expected only the idle entry evicted, removed %d", removed)
	}
	if got := table.attemptsLeft("idle"); got != cfg.MaxAttempts {
		t.Errorf("evicted entry must read as a clean slate, got %d attempts left", got)
	}
	if table.remaining("locked") == 0 {
		t.Fatal("locked entry must still be locked after the sweep")
	}

	// Once the lockout lapses and the TTL passes, the entry is evicted too.
	now = now.Add(time.Hour)
	if removed := table.sweep(now); removed != 1 {
		t.Errorf("expected the lapsed lockout evicted, removed %d", removed)
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Lockout: LockoutConfig{MaxAttempts: -1}}
	warnings := cfg.ApplyDefaults()
	if cfg.Lockout.MaxAttempts != 5 {
		t.Errorf("expected default max attempts 5, got %d", cfg.Lockout.MaxAttempts)
	}
	if len(warnings) != 1 {
		t.Errorf("expected 1 warning, got %d", len(warnings))
	}
	if cfg.Session.TokenTTLMinutes != 60 || cfg.Session.SecondFactorMaxAttempts != 3 {
		t.Errorf("session defaults not applied: %+v", cfg.Session)
	}
}
