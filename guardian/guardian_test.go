package guardian

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/kbukum/accountguard/credential"
	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/record"
)

func validDoc(t *testing.T) map[string]any {
	t.Helper()
	bundle := credential.Bundle{Hash: "aa", Salt: "bb", Tier: "T1", CreatedAt: time.Now().UTC()}
	rec := record.New("", "alice", bundle, "apple bolt cedar")
	doc, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return doc
}

func TestRepair_ValidRecordUntouched(t *testing.T) {
	g := New(logger.Nop())
	doc := validDoc(t)

	report := g.Repair(doc)
	if len(report.FixedFields) != 0 {
		t.Errorf("valid record should need no fixes, got %v", report.FixedFields)
	}
	if len(report.Errors) != 0 {
		t.Errorf("valid record should have no errors, got %v", report.Errors)
	}
}

func TestRepair_TruncatedContactsBecomesEmptySequence(t *testing.T) {
	g := New(logger.Nop())
	doc := validDoc(t)
	doc["contacts"] = "garbage"

	report := g.Repair(doc)

	if !report.Fixed("contacts") {
		t.Errorf("fixed fields must include contacts, got %v", report.FixedFields)
	}
	contacts, ok := doc["contacts"].([]any)
	if !ok || len(contacts) != 0 {
		t.Errorf("contacts must become an empty sequence, got %v", doc["contacts"])
	}
}

func TestRepair_ScalarDefaults(t *testing.T) {
	g := New(logger.Nop())
	doc := validDoc(t)
	delete(doc, "role")
	doc["balance"] = -5.0
	doc["login_count"] = 2.5
	doc["active"] = "yes"

	report := g.Repair(doc)

	if doc["role"] != record.RoleUser {
		t.Errorf("role default must be %q, got %v", record.RoleUser, doc["role"])
	}
	if doc["balance"] != 0.0 {
		t.Errorf("negative balance must reset to 0, got %v", doc["balance"])
	}
	if doc["login_count"] != 0.0 {
		t.Errorf("fractional count must reset to 0, got %v", doc["login_count"])
	}
	if doc["active"] != true {
		t.Errorf("malformed bool must take its default, got %v", doc["active"])
	}
	for _, want := range []string{"role", "balance", "login_count", "active"} {
		if !report.Fixed(want) {
			t.Errorf("fixed fields missing %q: %v", want, report.FixedFields)
		}
	}
}

func TestRepair_DerivedAddressIsDeterministic(t *testing.T) {
	g := New(logger.Nop())

	doc := validDoc(t)
	delete(doc, "address")
	other := deepCopy(doc)

	g.Repair(doc)
	g.Repair(other)

	if doc["address"] == "" || doc["address"] != other["address"] {
		t.Errorf("derived address must be deterministic, got %v vs %v", doc["address"], other["address"])
	}
}

func TestRepair_DropsContactWithoutAddress(t *testing.T) {
	g := New(logger.Nop())
	doc := validDoc(t)
	doc["contacts"] = []any{
		map[string]any{"address": "acct-1", "name": "bob"},
		map[string]any{"name": "no address here"},
		"not even an object",
	}

	report := g.Repair(doc)

	contacts := doc["contacts"].([]any)
	if len(contacts) != 1 {
		t.Fatalf("expected 1 surviving contact, got %d", len(contacts))
	}
	if len(report.Warnings) < 2 {
		t.Errorf("each dropped element deserves a warning, got %v", report.Warnings)
	}
}

func TestRepair_LedgerEntrySyntheticDefaults(t *testing.T) {
	g := New(logger.Nop())
	doc := validDoc(t)
	doc["ledger"] = []any{map[string]any{"amount": 4.25}}

	report := g.Repair(doc)

	entry := doc["ledger"].([]any)[0].(map[string]any)
	if entry["id"] == "" || entry["id"] == nil {
		t.Error("missing ledger id must be synthesized")
	}
	if entry["type"] != "unknown" {
		t.Errorf("missing type must default to unknown, got %v", entry["type"])
	}
	if entry["unit"] != "token" {
		t.Errorf("missing unit must default to token, got %v", entry["unit"])
	}
	if entry["amount"] != 4.25 {
		t.Errorf("valid amount must survive, got %v", entry["amount"])
	}
	if !report.Fixed("ledger[0].id") {
		t.Errorf("fix list should name the element field, got %v", report.FixedFields)
	}
}

func TestRepair_Idempotent(t *testing.T) {
	g := New(logger.Nop())

	malformed := map[string]any{
		"username": "mallory",
		"contacts": 42,
		"ledger":   []any{map[string]any{}, "junk"},
		"settings": map[string]any{"theme": 7},
		"balance":  "NaN",
	}

	first := deepCopy(malformed)
	g.Repair(first)
	second := deepCopy(first)
	report := g.Repair(second)

	if len(report.FixedFields) != 0 {
		t.Errorf("second repair must fix nothing, got %v", report.FixedFields)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repair(repair(r)) must equal repair(r)")
	}
}

func TestRepair_MissingUsernameIsAnError(t *testing.T) {
	g := New(logger.Nop())
	report := g.Repair(map[string]any{"balance": 1.0})

	if len(report.Errors) == 0 {
		t.Error("a record with no username must be reported as an error")
	}
	if report.Valid {
		t.Error("report must not be valid")
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	g := New(logger.Nop())
	doc := map[string]any{"username": "carol", "contacts": "broken"}
	before, _ := json.Marshal(doc)

	report := g.Validate(doc)

	after, _ := json.Marshal(doc)
	if string(before) != string(after) {
		t.Error("Validate must not mutate the document")
	}
	if report.Valid {
		t.Error("broken document must not validate clean")
	}
	if !report.Fixed("contacts") {
		t.Errorf("validation must report what repair would fix, got %v", report.FixedFields)
	}
}

func TestRepair_CredentialShape(t *testing.T) {
	g := New(logger.Nop())
	doc := validDoc(t)
	delete(doc, "credential")

	report := g.Repair(doc)

	cred, ok := doc["credential"].(map[string]any)
	if !ok {
		t.Fatal("credential must be restored as an object")
	}
	if cred["tier"] != "T3" {
		t.Errorf("synthesized credential should carry the weakest tier tag, got %v", cred["tier"])
	}
	if len(report.Warnings) == 0 {
		t.Error("a synthesized credential must warn about required reset")
	}
}

func TestRepair_CredentialHistoryFiltered(t *testing.T) {
	g := New(logger.Nop())
	doc := validDoc(t)
	doc["credential_history"] = []any{
		map[string]any{"hash": "aa", "salt": "bb", "tier": "T1"},
		map[string]any{"hash": 12},
		"junk",
	}

	report := g.Repair(doc)

	kept := doc["credential_history"].([]any)
	if len(kept) != 1 {
		t.Errorf("only well-formed history entries survive, got %d", len(kept))
	}
	if !report.Fixed("credential_history") {
		t.Errorf("history filtering must be reported, got %v", report.FixedFields)
	}
}

func TestDecode_AfterRepairAlwaysSucceeds(t *testing.T) {
	g := New(logger.Nop())
	malformed := map[string]any{
		"username":           "dave",
		"credential":         "broken",
		"credential_history": "broken",
		"settings":           map[string]any{"volume": 11},
		"achievements":       []any{map[string]any{"level": -3}},
	}
	g.Repair(malformed)

	rec, err := Decode(malformed)
	if err != nil {
		t.Fatalf("repaired document must decode: %v", err)
	}
	if rec.Username != "dave" {
		t.Errorf("expected username dave, got %s", rec.Username)
	}
	if rec.Settings["volume"] != "11" {
		t.Errorf("settings values normalize to strings, got %v", rec.Settings)
	}
	if len(rec.Achievements) != 1 || rec.Achievements[0].Level != 0 {
		t.Errorf("negative level must clamp to 0, got %+v", rec.Achievements)
	}
}
