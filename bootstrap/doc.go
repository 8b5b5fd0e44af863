// Package bootstrap assembles the account core from configuration: crypto
// negotiator, credential hasher, schema guardian, store, recovery manager,
// diagnostics and the authentication coordinator, all registered in a
// component registry with deterministic start and stop ordering.
package bootstrap
