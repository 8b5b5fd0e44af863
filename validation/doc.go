// Package validation provides input validation for authentication requests
// and struct-tag validation for configuration types. Failures surface as a
// single VALIDATION_ERROR carrying the per-field breakdown in Details.
package validation
