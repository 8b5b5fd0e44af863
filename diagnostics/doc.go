// Package diagnostics carries the structured error reporting contract of the
// core. Sensitive operations run inside a diagnostic session that records
// every error and warning emitted along the way; all reports pass through a
// Sink after known-sensitive fields are redacted. Sessions are swept from
// memory on an age basis by a host-owned background sweeper.
package diagnostics
