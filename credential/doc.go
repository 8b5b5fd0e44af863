// Package credential creates and verifies stored credential bundles on top
// of the cryptotier negotiator. A bundle records the hash, the salt, and the
// tier that produced it; verification always re-derives with the recorded
// tier's algorithm, so credentials created during a degraded window remain
// verifiable after the negotiator recovers. Password policy is configured
// per tier, never hard-coded.
package credential
