package credential

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/accountguard/cryptotier"
	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/logger"
)

// brokenProvider stands in for an unavailable tier.
type brokenProvider struct{ tier cryptotier.Tier }

func (b brokenProvider) Tier() cryptotier.Tier { return b.tier }
func (b brokenProvider) RandomBytes(int) ([]byte, error) {
	return nil, errors.New("unavailable")
}
func (b brokenProvider) Hash([]byte) ([]byte, error) { return nil, errors.New("unavailable") }
func (b brokenProvider) DeriveKey([]byte, []byte, int) ([]byte, error) {
	return nil, errors.New("unavailable")
}

func newTestHasher(t *testing.T, opts ...cryptotier.Option) *Hasher {
	t.Helper()
	neg := cryptotier.New(logger.Nop(), opts...)
	h, _ := NewHasher(neg, Config{Iterations: 1}, logger.Nop())
	return h
}

func TestCreateAndVerify_RoundTrip(t *testing.T) {
	h := newTestHasher(t)

	bundle, warnings, err := h.Create("Passw0rd!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if bundle.Tier != "T1" {
		t.Errorf("expected T1 bundle, got %s", bundle.Tier)
	}
	if len(warnings) != 0 {
		t.Errorf("T1 creation should carry no warnings, got %v", warnings)
	}

	ok, _, err := h.Verify("Passw0rd!", bundle)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("correct secret must verify")
	}

	ok, _, err = h.Verify("wrong-secret1", bundle)
	if err != nil {
		t.Fatalf("verify wrong: %v", err)
	}
	if ok {
		t.Error("wrong secret must not verify")
	}
}

func TestCreate_PolicyRejection(t *testing.T) {
	neg := cryptotier.New(logger.Nop())
	h, _ := NewHasher(neg, Config{
		Iterations: 1,
		Policies: map[string]Policy{
			"T1": {MinLength: 10, RequireUpper: true, RequireDigit: true, RequireSymbol: true},
		},
	}, logger.Nop())

	_, _, err := h.Create("short")
	if err == nil {
		t.Fatal("expected policy rejection")
	}
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials) {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", err)
	}
	appErr := apperrors.As(err)
	if appErr.NextStep == "" {
		t.Error("policy rejection must tell the user what is missing")
	}
}

// Verification stability: a credential created while only T3 works must
// remain verifiable after the negotiator regains T1, with a warning attached.
func TestVerify_StableAcrossTierRecovery(t *testing.T) {
	degraded := newTestHasher(t, cryptotier.WithProviders(
		brokenProvider{tier: cryptotier.TierPlatform},
		brokenProvider{tier: cryptotier.TierSoftware},
		cryptotier.NewFallbackProvider(),
	))

	bundle, warnings, err := degraded.Create("Passw0rd!")
	if err != nil {
		t.Fatalf("create at T3: %v", err)
	}
	if bundle.Tier != "T3" {
		t.Fatalf("expected T3 bundle, got %s", bundle.Tier)
	}
	if len(warnings) == 0 {
		t.Error("T3 creation must warn")
	}

	// Fresh hasher with the full chain healthy again.
	recovered := newTestHasher(t)
	ok, verifyWarnings, err := recovered.Verify("Passw0rd!", bundle)
	if err != nil {
		t.Fatalf("verify after recovery: %v", err)
	}
	if !ok {
		t.Error("T3 bundle must remain verifiable after T1 recovery")
	}
	found := false
	for _, w := range verifyWarnings {
		if strings.Contains(w, "reduced security") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected legacy-tier warning, got %v", verifyWarnings)
	}
}

func TestVerify_MalformedBundle(t *testing.T) {
	h := newTestHasher(t)

	cases := []Bundle{
		{},
		{Hash: "zz-not-hex", Salt: "00ff", Tier: "T1"},
		{Hash: "00ff", Salt: "zz-not-hex", Tier: "T1"},
	}
	for i, bundle := range cases {
		_, _, err := h.Verify("secret", bundle)
		if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials) {
			t.Errorf("case %d: expected INVALID_CREDENTIALS, got %v", i, err)
		}
	}
}

func TestChange_RejectsReuse(t *testing.T) {
	h := newTestHasher(t)

	current, _, err := h.Create("Original1!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, _, _, err = h.Change("Original1!", current, nil)
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials) {
		t.Fatalf("reusing the current password must fail, got %v", err)
	}

	next, history, _, err := h.Change("Different2@", current, nil)
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if len(history) != 1 || history[0].Hash != current.Hash {
		t.Errorf("old bundle should enter history, got %d entries", len(history))
	}

	// The retired password is still blocked through history.
	_, _, _, err = h.Change("Original1!", next, history)
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials) {
		t.Errorf("historical password must stay blocked, got %v", err)
	}
}

func TestChange_HistoryEviction(t *testing.T) {
	neg := cryptotier.New(logger.Nop())
	h, _ := NewHasher(neg, Config{
		Iterations: 1,
		Policies:   map[string]Policy{"T1": {MinLength: 8, HistoryCount: 2}},
	}, logger.Nop())

	current, _, _ := h.Create("Secret0a")
	var history []Bundle
	secrets := []string{"Secret1a", "Secret2a", "Secret3a"}
	for _, s := range secrets {
		var err error
		current, history, _, err = h.Change(s, current, history)
		if err != nil {
			t.Fatalf("change to %s: %v", s, err)
		}
	}
	if len(history) > 2 {
		t.Errorf("history must be capped at 2, got %d", len(history))
	}
}

func TestExpired(t *testing.T) {
	neg := cryptotier.New(logger.Nop())
	h, _ := NewHasher(neg, Config{
		Iterations: 1,
		Policies:   map[string]Policy{"T1": {MinLength: 8, MaxAgeDays: 30}},
	}, logger.Nop())

	fresh := Bundle{Tier: "T1", CreatedAt: time.Now()}
	if h.Expired(fresh) {
		t.Error("fresh bundle should not be expired")
	}
	stale := Bundle{Tier: "T1", CreatedAt: time.Now().Add(-31 * 24 * time.Hour)}
	if !h.Expired(stale) {
		t.Error("31-day-old bundle should be expired with MaxAgeDays=30")
	}
}

func TestConfig_ApplyDefaults_SubstitutesAndWarns(t *testing.T) {
	cfg := Config{Iterations: -1, SaltLength: 4}
	warnings := cfg.ApplyDefaults()

	if cfg.Iterations != 3 || cfg.SaltLength != 16 {
		t.Errorf("expected safe defaults, got iterations=%d salt=%d", cfg.Iterations, cfg.SaltLength)
	}
	if len(warnings) != 2 {
		t.Errorf("expected 2 CONFIG_INVALID warnings, got %d", len(warnings))
	}
	for _, w := range warnings {
		if w.Code != apperrors.ErrCodeConfigInvalid {
			t.Errorf("expected CONFIG_INVALID, got %s", w.Code)
		}
	}
}

func TestGenerateMnemonic(t *testing.T) {
	h := newTestHasher(t)

	phrase, warnings, err := h.GenerateMnemonic(0)
	if err != nil {
		t.Fatalf("mnemonic: %v", err)
	}
	words := strings.Fields(phrase)
	if len(words) != DefaultMnemonicWords {
		t.Errorf("expected %d words, got %d", DefaultMnemonicWords, len(words))
	}
	if len(warnings) != 0 {
		t.Errorf("T1 mnemonic should carry no warnings, got %v", warnings)
	}

	if NormalizeMnemonic("  Apple   BOLT  cedar ") != "apple bolt cedar" {
		t.Error("normalization should lower-case and collapse spaces")
	}
}
