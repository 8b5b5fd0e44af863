package guardian

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// elementResult is the outcome of repairing one collection element.
type elementResult struct {
	element map[string]any
	fixed   []string // field names fixed inside the element
	dropped bool     // element could not be minimally completed
}

// elementChecker repairs one raw collection element. idx is used for fix
// reporting only.
type elementChecker func(idx int, raw any) elementResult

var elementCheckers = map[string]elementChecker{
	"contacts":     repairContact,
	"ledger":       repairLedgerEntry,
	"incidents":    repairIncident,
	"achievements": repairAchievement,
}

// repairContact requires an address; a contact without one is dropped.
func repairContact(idx int, raw any) elementResult {
	el, ok := raw.(map[string]any)
	if !ok {
		return elementResult{dropped: true}
	}
	addr, ok := el["address"].(string)
	if !ok || addr == "" {
		return elementResult{dropped: true}
	}
	res := elementResult{element: el}
	res.fixed = append(res.fixed, fixString(el, "contacts", idx, "name", "")...)
	res.fixed = append(res.fixed, fixTime(el, "contacts", idx, "added_at")...)
	return res
}

func repairLedgerEntry(idx int, raw any) elementResult {
	el, ok := raw.(map[string]any)
	if !ok {
		return elementResult{dropped: true}
	}
	res := elementResult{element: el}
	res.fixed = append(res.fixed, fixID(el, "ledger", idx, "led")...)
	res.fixed = append(res.fixed, fixTime(el, "ledger", idx, "timestamp")...)
	res.fixed = append(res.fixed, fixString(el, "ledger", idx, "type", "unknown")...)
	res.fixed = append(res.fixed, fixAmount(el, "ledger", idx, "amount")...)
	res.fixed = append(res.fixed, fixString(el, "ledger", idx, "unit", "token")...)
	res.fixed = append(res.fixed, fixString(el, "ledger", idx, "description", "")...)
	return res
}

func repairIncident(idx int, raw any) elementResult {
	el, ok := raw.(map[string]any)
	if !ok {
		return elementResult{dropped: true}
	}
	res := elementResult{element: el}
	res.fixed = append(res.fixed, fixID(el, "incidents", idx, "inc")...)
	res.fixed = append(res.fixed, fixTime(el, "incidents", idx, "timestamp")...)
	res.fixed = append(res.fixed, fixString(el, "incidents", idx, "kind", "unknown")...)
	res.fixed = append(res.fixed, fixString(el, "incidents", idx, "detail", "")...)
	res.fixed = append(res.fixed, fixBool(el, "incidents", idx, "resolved", false)...)
	return res
}

func repairAchievement(idx int, raw any) elementResult {
	el, ok := raw.(map[string]any)
	if !ok {
		return elementResult{dropped: true}
	}
	res := elementResult{element: el}
	res.fixed = append(res.fixed, fixID(el, "achievements", idx, "ach")...)
	res.fixed = append(res.fixed, fixTime(el, "achievements", idx, "timestamp")...)
	res.fixed = append(res.fixed, fixString(el, "achievements", idx, "name", "unknown")...)
	res.fixed = append(res.fixed, fixCount(el, "achievements", idx, "level")...)
	res.fixed = append(res.fixed, fixAmount(el, "achievements", idx, "reward")...)
	return res
}

// --- shared element field fixers ---

func fieldPath(collection string, idx int, field string) string {
	return fmt.Sprintf("%s[%d].%s", collection, idx, field)
}

func fixString(el map[string]any, collection string, idx int, field, def string) []string {
	if _, ok := el[field].(string); ok {
		return nil
	}
	el[field] = def
	return []string{fieldPath(collection, idx, field)}
}

func fixBool(el map[string]any, collection string, idx int, field string, def bool) []string {
	if _, ok := el[field].(bool); ok {
		return nil
	}
	el[field] = def
	return []string{fieldPath(collection, idx, field)}
}

func fixTime(el map[string]any, collection string, idx int, field string) []string {
	if s, ok := el[field].(string); ok {
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return nil
		}
	}
	el[field] = time.Now().UTC().Format(time.RFC3339)
	return []string{fieldPath(collection, idx, field)}
}

func fixID(el map[string]any, collection string, idx int, prefix string) []string {
	if s, ok := el["id"].(string); ok && s != "" {
		return nil
	}
	el["id"] = prefix + "-" + uuid.NewString()
	return []string{fieldPath(collection, idx, "id")}
}

func fixAmount(el map[string]any, collection string, idx int, field string) []string {
	if f, ok := toFloat(el[field]); ok && !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0 {
		el[field] = f
		return nil
	}
	el[field] = 0.0
	return []string{fieldPath(collection, idx, field)}
}

func fixCount(el map[string]any, collection string, idx int, field string) []string {
	if f, ok := toFloat(el[field]); ok && !math.IsNaN(f) && f >= 0 && f == math.Trunc(f) {
		el[field] = f
		return nil
	}
	el[field] = 0.0
	return []string{fieldPath(collection, idx, field)}
}
