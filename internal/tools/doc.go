// Package tools provides reusable runtime helpers shared by cictl commands.
//
// Ownership boundary:
// - command execution helpers
//
// - host environment lookup primitives
package tools
