// Package cryptotier negotiates cryptographic capability across ranked tiers.
//
// Tier 1 uses the platform entropy source and argon2id. Tier 2 runs entirely
// in software on a chacha20 keystream and pbkdf2. Tier 3 is a deterministic
// multi-source mix that is explicitly insecure and exists only to keep the
// application available. Every operation reports the tier that actually
// produced its output together with any degradation warnings, so callers can
// refuse to treat low-tier output as a real secret.
package cryptotier
