// Package resilience provides retry with exponential backoff for transient
// store faults. Retry decisions are driven by the error taxonomy: only codes
// marked retryable (storage unavailability) are attempted again; typed user
// failures return immediately.
package resilience
