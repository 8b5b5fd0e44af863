// Package guardian defensively validates and repairs account record
// documents. Records on disk may be partially written, missing fields, or
// structurally stale, so the guardian works on raw decoded documents, walks
// a declarative schema table, substitutes documented defaults for anything
// missing or malformed, and reports exactly what it changed. It never fails
// on malformed input; repair is idempotent.
package guardian
