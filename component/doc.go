// Package component defines the lifecycle contract the host application uses
// to run the core's long-lived parts: the recovery manager and the session
// sweeper. Components start in registration order and stop in reverse.
package component
