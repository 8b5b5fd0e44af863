// Package store persists account records on the local filesystem. The base
// directory holds one sub-directory per logical domain plus registry files
// for username lookup, privileged accounts, and store metadata. Every read
// passes through the guardian so callers always receive a minimally-complete
// record together with a report of what had to be repaired. Writes are
// atomic (temp file + rename) and operations on one address are serialized.
package store
