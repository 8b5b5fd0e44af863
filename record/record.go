package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/kbukum/accountguard/credential"
)

// RoleUser is the default role for new and repaired records.
const RoleUser = "user"

// Contact is an address-book entry. A contact without an address cannot be
// minimally completed and is dropped during repair.
type Contact struct {
	Address string    `json:"address"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}

// LedgerEntry is one balance movement.
type LedgerEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Unit        string    `json:"unit"`
	Description string    `json:"description"`
}

// SecurityIncident records a notable security event on the account.
type SecurityIncident struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Resolved  bool      `json:"resolved"`
}

// AchievementBlock is one earned achievement from the mining UI.
type AchievementBlock struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Level     int       `json:"level"`
	Reward    float64   `json:"reward"`
}

// Record is the persisted account. Every record that passes validation has
// all four collections present (possibly empty) and all numeric fields
// finite and non-negative.
type Record struct {
	Address        string `json:"address"`
	Username       string `json:"username"`
	Role           string `json:"role"`
	RecoveryPhrase string `json:"recovery_phrase"`

	Credential        credential.Bundle   `json:"credential"`
	CredentialHistory []credential.Bundle `json:"credential_history,omitempty"`

	Balance        float64 `json:"balance"`
	PendingBalance float64 `json:"pending_balance"`
	TotalMined     float64 `json:"total_mined"`
	LoginCount     int64   `json:"login_count"`
	SessionCount   int64   `json:"session_count"`

	Active  bool `json:"active"`
	Founder bool `json:"founder"`

	Contacts     []Contact          `json:"contacts"`
	Ledger       []LedgerEntry      `json:"ledger"`
	Incidents    []SecurityIncident `json:"incidents"`
	Achievements []AchievementBlock `json:"achievements"`

	Settings map[string]string `json:"settings"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// New builds a fully-defaulted record: empty collections, zeroed balances,
// role "user", active. Used by registration and by the guardian's synthetic
// placeholder path.
func New(address, username string, bundle credential.Bundle, recoveryPhrase string) *Record {
	now := time.Now().UTC()
	if address == "" {
		address = DeriveAddress(username, now)
	}
	return &Record{
		Address:        address,
		Username:       username,
		Role:           RoleUser,
		RecoveryPhrase: recoveryPhrase,
		Credential:     bundle,
		Active:         true,
		Contacts:       []Contact{},
		Ledger:         []LedgerEntry{},
		Incidents:      []SecurityIncident{},
		Achievements:   []AchievementBlock{},
		Settings:       map[string]string{},
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessAt:   now,
	}
}

// DeriveAddress regenerates a stable address deterministically from the
// username and a timestamp. Used when a stored record lost its address.
func DeriveAddress(username string, ts time.Time) string {
	sum := sha256.Sum256([]byte(strings.ToLower(username) + "|" + ts.UTC().Format(time.RFC3339)))
	return "acct-" + hex.EncodeToString(sum[:8])
}

// NormalizedUsername returns the case-insensitive comparison form.
func NormalizedUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Touch updates the access timestamp.
func (r *Record) Touch() {
	r.LastAccessAt = time.Now().UTC()
}

// MarkUpdated updates the modification timestamp.
func (r *Record) MarkUpdated() {
	r.UpdatedAt = time.Now().UTC()
}
