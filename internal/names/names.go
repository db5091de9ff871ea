// Package names defines the canonical key representation for player names.
//
// Every cross-package key (import parsing, roster lookups, persisted rows)
// must already be normalized before use; a name that has not passed through
// Normalize is never a valid key.
package names

import "strings"

// Normalize trims surrounding whitespace and lowercases a player name.
// It is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Valid reports whether s normalizes to a usable key.
func Valid(s string) bool {
	return Normalize(s) != ""
}
