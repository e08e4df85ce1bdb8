// Package idgen provides random identifiers for ledger, offer and trade records.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random (v4) UUID string.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix + 32 hex chars, e.g. "trd_3f2a...".
func WithPrefix(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether s parses as a UUID (with or without a known prefix stripped by the caller).
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
