// Package errors provides the typed failure taxonomy for the account core.
// Every public entry point of the core returns an *AppError instead of a raw
// error, carrying a machine-readable code, a user-safe message, and where
// applicable an actionable next step (wait duration, reset hint).
package errors
