// Package record defines the account record, the unit of persistence for the
// account core, together with the element types of its four collections and
// the fully-defaulted construction path used at registration.
package record
