package credential

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kbukum/accountguard/cryptotier"
	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/logger"
)

// WarnLegacyTier is staged when a bundle created at a weaker tier verifies
// while a stronger tier is active. The host should prompt a password change.
const WarnLegacyTier = "credential was created at reduced security; change the password to upgrade it"

// Bundle is the stored, verifiable form of a secret.
type Bundle struct {
	Hash      string    `json:"hash"`
	Salt      string    `json:"salt"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// IsZero reports whether the bundle has never been populated.
func (b Bundle) IsZero() bool { return b.Hash == "" && b.Salt == "" }

// Hasher derives and verifies credential bundles.
type Hasher struct {
	neg *cryptotier.Negotiator
	cfg Config
	log *logger.Logger
}

// NewHasher creates a Hasher. Config defaults are applied; any substitution
// warnings are logged and returned.
func NewHasher(neg *cryptotier.Negotiator, cfg Config, log *logger.Logger) (*Hasher, []*apperrors.AppError) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("credential")
	warnings := cfg.ApplyDefaults()
	for _, w := range warnings {
		log.Warn(w.Message)
	}
	return &Hasher{neg: neg, cfg: cfg, log: log}, warnings
}

// Create derives a fresh bundle for the secret at the best available tier.
// The returned warnings are non-empty when the bundle was produced below T1.
func (h *Hasher) Create(secret string) (Bundle, []string, error) {
	activeTag := h.neg.ActiveTier().String()
	if err := h.checkPolicy(secret, activeTag); err != nil {
		return Bundle{}, nil, err
	}

	saltRes, err := h.neg.RandomBytes(h.cfg.SaltLength)
	if err != nil {
		return Bundle{}, nil, err
	}

	derived, err := h.neg.DeriveKey(h.peppered(secret), saltRes.Value, h.cfg.Iterations)
	if err != nil {
		return Bundle{}, nil, err
	}

	bundle := Bundle{
		Hash:      hex.EncodeToString(derived.Value),
		Salt:      hex.EncodeToString(saltRes.Value),
		Tier:      derived.Tier.String(),
		CreatedAt: time.Now().UTC(),
	}
	return bundle, mergeWarnings(saltRes.Warnings, derived.Warnings), nil
}

// Verify re-derives the secret with the bundle's recorded tier algorithm and
// compares in constant time. Warnings disclose reduced-security verification
// and legacy bundles that should be upgraded.
func (h *Hasher) Verify(secret string, bundle Bundle) (bool, []string, error) {
	if bundle.IsZero() {
		return false, nil, apperrors.InvalidCredentials().WithCause(fmt.Errorf("credential: empty bundle"))
	}
	salt, err := hex.DecodeString(bundle.Salt)
	if err != nil || len(salt) == 0 {
		return false, nil, apperrors.InvalidCredentials().WithCause(fmt.Errorf("credential: malformed salt"))
	}
	stored, err := hex.DecodeString(bundle.Hash)
	if err != nil || len(stored) == 0 {
		return false, nil, apperrors.InvalidCredentials().WithCause(fmt.Errorf("credential: malformed hash"))
	}

	tier := cryptotier.ParseTier(bundle.Tier)
	derived, derr := h.neg.DeriveKeyAt(tier, h.peppered(secret), salt, h.cfg.Iterations)
	if derr != nil {
		return false, nil, derr
	}

	warnings := append([]string(nil), derived.Warnings...)
	if tier > h.neg.ActiveTier() {
		warnings = append(warnings, WarnLegacyTier)
	}

	ok := subtle.ConstantTimeCompare(derived.Value, stored) == 1
	return ok, warnings, nil
}

// Expired reports whether the bundle has outlived the max age of its tier's
// policy. A zero MaxAgeDays disables expiry.
func (h *Hasher) Expired(bundle Bundle) bool {
	policy := h.cfg.PolicyFor(bundle.Tier)
	if policy.MaxAgeDays <= 0 || bundle.CreatedAt.IsZero() {
		return false
	}
	return time.Since(bundle.CreatedAt) > time.Duration(policy.MaxAgeDays)*24*time.Hour
}

// Change derives a replacement bundle, enforcing that the new secret differs
// from the current one and from every bundle in the history window. It
// returns the new bundle and the updated history (current prepended, oldest
// evicted past the policy's history count).
func (h *Hasher) Change(newSecret string, current Bundle, history []Bundle) (Bundle, []Bundle, []string, error) {
	for _, old := range append([]Bundle{current}, history...) {
		if old.IsZero() {
			continue
		}
		match, _, err := h.Verify(newSecret, old)
		if err != nil {
			// A bundle we can no longer verify cannot block the change.
			continue
		}
		if match {
			reuse := apperrors.InvalidCredentials()
			reuse.Message = "new password matches a previous one"
			reuse.UserMessage = "The new password was used before."
			reuse.NextStep = "Choose a password you have not used recently."
			return Bundle{}, nil, nil, reuse
		}
	}

	bundle, warnings, err := h.Create(newSecret)
	if err != nil {
		return Bundle{}, nil, nil, err
	}

	depth := h.cfg.PolicyFor(bundle.Tier).HistoryCount
	updated := append([]Bundle{current}, history...)
	if depth >= 0 && len(updated) > depth {
		updated = updated[:depth]
	}
	return bundle, updated, warnings, nil
}

func (h *Hasher) peppered(secret string) []byte {
	return []byte(h.cfg.Pepper + ":" + secret)
}

// checkPolicy applies the configured policy for the given tier tag.
func (h *Hasher) checkPolicy(secret, tierTag string) error {
	policy := h.cfg.PolicyFor(tierTag)

	var missing []string
	if len(secret) < policy.MinLength {
		missing = append(missing, fmt.Sprintf("at least %d characters", policy.MinLength))
	}
	var hasUpper, hasDigit, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsNumber(r):
			hasSymbol = true
		}
	}
	if policy.RequireUpper && !hasUpper {
		missing = append(missing, "an upper-case letter")
	}
	if policy.RequireDigit && !hasDigit {
		missing = append(missing, "a digit")
	}
	if policy.RequireSymbol && !hasSymbol {
		missing = append(missing, "a symbol")
	}
	if len(missing) == 0 {
		return nil
	}

	err := apperrors.InvalidCredentials()
	err.Message = "password rejected by policy"
	err.UserMessage = "The password does not meet the security requirements."
	err.NextStep = "Use " + strings.Join(missing, ", ") + "."
	return err
}

func mergeWarnings(lists ...[]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, list := range lists {
		for _, w := range list {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}
