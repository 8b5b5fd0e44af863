// Package logger provides structured logging for the account core built on
// zerolog. Components obtain child loggers via WithComponent and attach
// per-operation fields with the Field* constants so log output stays uniform
// across the crypto, storage, recovery, and auth layers.
package logger
