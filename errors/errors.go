package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// AppError is the unified error type returned by every core operation.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message for logs.
	Message string `json:"message"`
	// UserMessage is a safe message for end users. Never contains secrets,
	// paths, or internal identifiers.
	UserMessage string `json:"user_message,omitempty"`
	// NextStep tells the user what to do about it, when there is something.
	NextStep string `json:"next_step,omitempty"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status for the consuming API layer.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// As extracts an *AppError from an error chain. Returns nil if none is found.
func As(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the code of an error, or ErrCodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if appErr := As(err); appErr != nil {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr := As(err)
	return appErr != nil && appErr.Code == code
}

// --- Common Error Constructors ---

// NotFound creates a new AppError for a record that was not found.
func NotFound(identifier string) *AppError {
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("no account matches identifier %q", identifier),
		UserMessage: "No account was found for that identifier.",
		NextStep:    "Check the identifier and try again.",
		HTTPStatus:  http.StatusNotFound, Retryable: false,
		Details: map[string]any{"identifier": identifier},
	}
}

// AlreadyExists creates a new AppError for a taken identifier.
func AlreadyExists(identifier string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("an account with identifier %q already exists", identifier),
		UserMessage: "An account with that name already exists.",
		NextStep:    "Pick a different username or log in instead.",
		HTTPStatus:  http.StatusConflict, Retryable: false,
		Details: map[string]any{"identifier": identifier},
	}
}

// InvalidCredentials creates a new AppError for a secret mismatch.
func InvalidCredentials() *AppError {
	return &AppError{
		Code: ErrCodeInvalidCredentials, Message: "credential verification failed",
		UserMessage: "The password you entered is incorrect.",
		NextStep:    "Try again, or use account recovery if you forgot your password.",
		HTTPStatus:  http.StatusUnauthorized, Retryable: false,
	}
}

// Locked creates a new AppError for a locked account. The remaining wait is
// attached both as a detail and in the user-facing next step.
func Locked(remaining time.Duration) *AppError {
	secs := int(remaining.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return &AppError{
		Code: ErrCodeLocked, Message: fmt.Sprintf("account locked for another %ds", secs),
		UserMessage: "Too many failed attempts. The account is temporarily locked.",
		NextStep:    fmt.Sprintf("Wait %d seconds before trying again.", secs),
		HTTPStatus:  http.StatusTooManyRequests, Retryable: false,
		Details: map[string]any{"lockout_seconds": secs},
	}
}

// SessionExpired creates a new AppError for a missing or expired diagnostic session.
func SessionExpired(sessionID string) *AppError {
	return &AppError{
		Code: ErrCodeSessionExpired, Message: fmt.Sprintf("session %s is missing or expired", sessionID),
		UserMessage: "Your sign-in session expired.",
		NextStep:    "Start the sign-in again.",
		HTTPStatus:  http.StatusUnauthorized, Retryable: false,
	}
}

// StorageUnavailable creates a new AppError for an inaccessible store.
func StorageUnavailable(op string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStorageUnavailable, Message: fmt.Sprintf("storage operation %s failed", op),
		UserMessage: "The account store is temporarily unavailable.",
		NextStep:    "Please try again in a moment.",
		HTTPStatus:  http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"operation": op}, Cause: cause,
	}
}

// SchemaCorruption creates a new AppError for a record beyond repair.
func SchemaCorruption(address string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSchemaCorruption, Message: fmt.Sprintf("record %s failed minimal-shape checks after repair", address),
		UserMessage: "The account data could not be read.",
		NextStep:    "Contact support; the damaged record has been quarantined.",
		HTTPStatus:  http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"address": address}, Cause: cause,
	}
}

// CryptoDegraded creates the mandatory warning for results produced below the
// top crypto tier. It is attached to successful results, never returned alone.
func CryptoDegraded(tier string, reason string) *AppError {
	return &AppError{
		Code: ErrCodeCryptoDegraded, Message: fmt.Sprintf("crypto provider degraded to %s: %s", tier, reason),
		UserMessage: "Security features are running in a reduced mode.",
		HTTPStatus:  http.StatusOK, Retryable: false,
		Details: map[string]any{"tier": tier},
	}
}

// CryptoUnavailable creates a fatal configuration error for when every crypto
// tier failed. Callers must not treat any output as usable.
func CryptoUnavailable(cause error) *AppError {
	return &AppError{
		Code: ErrCodeCryptoUnavailable, Message: "all cryptographic tiers are unavailable",
		UserMessage: "A critical security component is unavailable.",
		NextStep:    "Restart the application; if this persists, reinstall.",
		HTTPStatus:  http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// ConfigInvalid creates a warning for an unrecognized or contradictory
// configuration value that was replaced by a safe default.
func ConfigInvalid(field string, reason string) *AppError {
	return &AppError{
		Code: ErrCodeConfigInvalid, Message: fmt.Sprintf("config %s: %s; safe default substituted", field, reason),
		HTTPStatus: http.StatusOK, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// Validation creates a new AppError for malformed caller input.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeValidation, Message: message,
		UserMessage: "Please check your input and try again.",
		NextStep:    "fix the listed fields and retry",
		HTTPStatus:  http.StatusBadRequest, Retryable: false,
	}
}

// Internal creates a new AppError for an unexpected fault caught at a boundary.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		UserMessage: "Something went wrong. Please try again.",
		HTTPStatus:  http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
