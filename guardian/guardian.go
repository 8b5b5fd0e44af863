package guardian

import (
	"encoding/json"
	"fmt"

	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/record"
)

// Report lists everything a validation or repair pass found and changed.
type Report struct {
	// Valid is true when the document needed no fixes and has no errors.
	Valid bool
	// Errors are conditions repair could not resolve (record stays unusable).
	Errors []string
	// Warnings are conditions that were resolved but the caller should know about.
	Warnings []string
	// FixedFields names every field that was replaced or synthesized.
	FixedFields []string
}

// Fixed reports whether the named field (or any field under a collection
// name) was changed.
func (r Report) Fixed(name string) bool {
	for _, f := range r.FixedFields {
		if f == name {
			return true
		}
	}
	return false
}

// Guardian validates and repairs raw account documents.
type Guardian struct {
	log *logger.Logger
}

// New creates a Guardian.
func New(log *logger.Logger) *Guardian {
	if log == nil {
		log = logger.Nop()
	}
	return &Guardian{log: log.WithComponent("guardian")}
}

// Validate checks a document without mutating it.
func (g *Guardian) Validate(doc map[string]any) Report {
	copied := deepCopy(doc)
	return g.Repair(copied)
}

// Repair normalizes the document in place: every required scalar gets its
// documented default when missing or malformed, every collection becomes a
// sequence of minimally-complete elements, and the credential object and
// settings bag are restored to usable shapes. Malformed input never causes
// an error return; irreparable conditions land in Report.Errors.
func (g *Guardian) Repair(doc map[string]any) Report {
	report := Report{}
	if doc == nil {
		report.Errors = append(report.Errors, "document is nil")
		return report
	}

	g.repairScalars(doc, &report)
	g.repairCredential(doc, &report)
	g.repairSettings(doc, &report)
	for _, name := range collectionNames {
		g.repairCollection(doc, name, &report)
	}

	// Minimal shape: a record without a username cannot be tied to anyone.
	if username, _ := doc["username"].(string); username == "" {
		report.Errors = append(report.Errors, "username is empty after repair")
	}

	report.Valid = len(report.Errors) == 0 && len(report.FixedFields) == 0
	if len(report.FixedFields) > 0 {
		g.log.Info("record repaired", logger.Fields(
			logger.FieldFixedFields, report.FixedFields,
			logger.FieldCount, len(report.FixedFields),
		))
	}
	return report
}

func (g *Guardian) repairScalars(doc map[string]any, report *Report) {
	for _, spec := range scalarFields {
		raw, present := doc[spec.Name]
		if present {
			if normalized, ok := coerceScalar(spec.Kind, raw); ok {
				doc[spec.Name] = normalized
				continue
			}
		}
		def := spec.Default
		if spec.Derive != nil {
			def = spec.Derive(doc)
		}
		doc[spec.Name] = def
		report.FixedFields = append(report.FixedFields, spec.Name)
	}
}

// repairCredential restores the credential object's minimal shape. An empty
// bundle is structurally fine but unusable for login, which is worth a
// warning rather than an error.
func (g *Guardian) repairCredential(doc map[string]any, report *Report) {
	cred, ok := doc["credential"].(map[string]any)
	if !ok {
		doc["credential"] = map[string]any{"hash": "", "salt": "", "tier": "T3"}
		report.FixedFields = append(report.FixedFields, "credential")
		report.Warnings = append(report.Warnings, "credential missing; authentication requires a password reset")
		return
	}
	for _, field := range []string{"hash", "salt", "tier"} {
		if _, ok := cred[field].(string); !ok {
			cred[field] = ""
			if field == "tier" {
				cred[field] = "T3"
			}
			report.FixedFields = append(report.FixedFields, "credential."+field)
		}
	}
	if raw, present := cred["created_at"]; present {
		if _, ok := coerceScalar(KindTime, raw); !ok {
			delete(cred, "created_at")
			report.FixedFields = append(report.FixedFields, "credential.created_at")
		}
	}
	if hash, _ := cred["hash"].(string); hash == "" {
		report.Warnings = append(report.Warnings, "credential missing; authentication requires a password reset")
	}

	g.repairCredentialHistory(doc, report)
}

// repairCredentialHistory keeps only history entries that still look like
// bundles; anything else would poison the typed decode.
func (g *Guardian) repairCredentialHistory(doc map[string]any, report *Report) {
	raw, present := doc["credential_history"]
	if !present {
		return
	}
	list, ok := raw.([]any)
	if !ok {
		delete(doc, "credential_history")
		report.FixedFields = append(report.FixedFields, "credential_history")
		return
	}
	kept := make([]any, 0, len(list))
	touched := false
	for _, rawEntry := range list {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			touched = true
			continue
		}
		usable := true
		for _, field := range []string{"hash", "salt", "tier"} {
			if _, ok := entry[field].(string); !ok {
				usable = false
			}
		}
		if raw, present := entry["created_at"]; present {
			if _, ok := coerceScalar(KindTime, raw); !ok {
				delete(entry, "created_at")
				touched = true
			}
		}
		if !usable {
			touched = true
			continue
		}
		kept = append(kept, entry)
	}
	doc["credential_history"] = kept
	if touched {
		report.FixedFields = append(report.FixedFields, "credential_history")
	}
}

func (g *Guardian) repairSettings(doc map[string]any, report *Report) {
	raw, ok := doc["settings"].(map[string]any)
	if !ok {
		doc["settings"] = map[string]any{}
		report.FixedFields = append(report.FixedFields, "settings")
		return
	}
	for key, value := range raw {
		if _, ok := value.(string); !ok {
			raw[key] = fmt.Sprintf("%v", value)
			report.FixedFields = append(report.FixedFields, "settings."+key)
		}
	}
}

func (g *Guardian) repairCollection(doc map[string]any, name string, report *Report) {
	checker := elementCheckers[name]

	raw, ok := doc[name].([]any)
	if !ok {
		doc[name] = []any{}
		report.FixedFields = append(report.FixedFields, name)
		return
	}

	repaired := make([]any, 0, len(raw))
	collectionTouched := false
	for idx, rawElement := range raw {
		res := checker(idx, rawElement)
		if res.dropped {
			collectionTouched = true
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s[%d] dropped: cannot be minimally completed", name, idx))
			continue
		}
		repaired = append(repaired, res.element)
		report.FixedFields = append(report.FixedFields, res.fixed...)
	}
	doc[name] = repaired
	if collectionTouched {
		report.FixedFields = append(report.FixedFields, name)
	}
}

// Decode converts a repaired document into the typed record.
func Decode(doc map[string]any) (*record.Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("guardian: encode document: %w", err)
	}
	var rec record.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("guardian: decode document: %w", err)
	}
	return &rec, nil
}

// Encode converts a typed record to its document form.
func Encode(rec *record.Record) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("guardian: encode record: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("guardian: decode record: %w", err)
	}
	return doc, nil
}

func deepCopy(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return map[string]any{}
	}
	var copied map[string]any
	if err := json.Unmarshal(data, &copied); err != nil {
		return map[string]any{}
	}
	return copied
}
