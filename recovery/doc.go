// Package recovery owns storage bootstrap and emergency repair. A Manager
// walks a small state machine: NotStarted, Bootstrapping, then Ready on a
// clean pass or EmergencyRecovery when bootstrap fails or times out.
// Emergency recovery runs a fixed sequence of escalating repairs and is
// bounded by a configurable attempt count. Concurrent Initialize calls are
// collapsed into a single run.
package recovery
