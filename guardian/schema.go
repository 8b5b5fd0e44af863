package guardian

import (
	"math"
	"time"

	"github.com/kbukum/accountguard/record"
)

// Kind is the expected type of a scalar field.
type Kind int

const (
	KindString Kind = iota
	KindNumber      // non-negative finite float
	KindCount       // non-negative integer
	KindBool
	KindTime // RFC3339 string
)

// FieldSpec declares one required scalar field: its name, expected kind, and
// the documented default used when the stored value is missing or malformed.
// Derive, when set, computes the default from the rest of the document.
type FieldSpec struct {
	Name    string
	Kind    Kind
	Default any
	Derive  func(doc map[string]any) any
}

// scalarFields is the schema table for the record's required scalars.
// Interpreted by repairScalars; order matters only in that created_at is
// repaired before the derived address that depends on it.
var scalarFields = []FieldSpec{
	{Name: "username", Kind: KindString, Default: ""},
	{Name: "created_at", Kind: KindTime, Derive: nowDefault},
	{Name: "address", Kind: KindString, Derive: deriveAddress},
	{Name: "role", Kind: KindString, Default: record.RoleUser},
	{Name: "recovery_phrase", Kind: KindString, Default: ""},
	{Name: "balance", Kind: KindNumber, Default: 0.0},
	{Name: "pending_balance", Kind: KindNumber, Default: 0.0},
	{Name: "total_mined", Kind: KindNumber, Default: 0.0},
	{Name: "login_count", Kind: KindCount, Default: 0.0},
	{Name: "session_count", Kind: KindCount, Default: 0.0},
	{Name: "active", Kind: KindBool, Default: true},
	{Name: "founder", Kind: KindBool, Default: false},
	{Name: "updated_at", Kind: KindTime, Derive: nowDefault},
	{Name: "last_access_at", Kind: KindTime, Derive: nowDefault},
}

// collectionNames are the four required collections, each repaired by its
// element checker in elements.go.
var collectionNames = []string{"contacts", "ledger", "incidents", "achievements"}

func nowDefault(map[string]any) any {
	return time.Now().UTC().Format(time.RFC3339)
}

// deriveAddress regenerates a missing address from username + created_at,
// matching record.DeriveAddress.
func deriveAddress(doc map[string]any) any {
	username, _ := doc["username"].(string)
	created := time.Now().UTC()
	if raw, ok := doc["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			created = ts
		}
	}
	return record.DeriveAddress(username, created)
}

// coerceScalar checks a raw value against a kind. It returns the normalized
// value and whether the original was acceptable.
func coerceScalar(kind Kind, raw any) (any, bool) {
	switch kind {
	case KindString:
		s, ok := raw.(string)
		return s, ok
	case KindBool:
		b, ok := raw.(bool)
		return b, ok
	case KindNumber:
		f, ok := toFloat(raw)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return nil, false
		}
		return f, true
	case KindCount:
		f, ok := toFloat(raw)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) {
			return nil, false
		}
		return f, true
	case KindTime:
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return nil, false
		}
		return s, true
	default:
		return nil, false
	}
}

// toFloat accepts the numeric shapes a JSON decode can produce.
func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
