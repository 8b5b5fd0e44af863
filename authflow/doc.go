// Package authflow is the authentication coordinator: registration, login,
// mnemonic-based account recovery and second-factor verification. Every
// operation runs inside a diagnostic session, tolerates transient storage
// faults through retries, converts panics into INTERNAL_ERROR at the
// boundary, and enforces per-account lockout after repeated failures.
package authflow
