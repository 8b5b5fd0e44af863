package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Lookup and identity errors
const (
	// ErrCodeNotFound indicates no record matches the identifier.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the identifier is already taken.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
)

// Authentication errors
const (
	// ErrCodeInvalidCredentials indicates a secret mismatch or malformed credential fields.
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	// ErrCodeLocked indicates the account is temporarily locked after repeated failures.
	ErrCodeLocked ErrorCode = "LOCKED"
	// ErrCodeSessionExpired indicates the diagnostic session is no longer valid.
	ErrCodeSessionExpired ErrorCode = "SESSION_EXPIRED"
)

// Storage and data errors
const (
	// ErrCodeStorageUnavailable indicates the underlying store is inaccessible.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	// ErrCodeSchemaCorruption indicates a record fails minimal-shape checks even after repair.
	ErrCodeSchemaCorruption ErrorCode = "SCHEMA_CORRUPTION"
)

// Degradation and configuration
const (
	// ErrCodeCryptoDegraded indicates the crypto layer fell back below its top tier.
	// This is a mandatory warning on otherwise successful results, not a failure.
	ErrCodeCryptoDegraded ErrorCode = "CRYPTO_DEGRADED"
	// ErrCodeConfigInvalid indicates unrecognized or contradictory configuration,
	// recovered by substituting safe defaults.
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ErrCodeCryptoUnavailable indicates every crypto tier failed. Fatal for the operation.
	ErrCodeCryptoUnavailable ErrorCode = "CRYPTO_UNAVAILABLE"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected fault that was caught at the boundary.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeValidation indicates malformed caller input, rejected before any
	// credential check runs.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeStorageUnavailable: true,
	ErrCodeNotFound:           false,
	ErrCodeInvalidCredentials: false,
	ErrCodeLocked:             false,
	ErrCodeSchemaCorruption:   false,
	ErrCodeCryptoUnavailable:  false,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
