// Package ops implements glean's operations over the key-value store.
// Every surface (HTTP, CLI, MCP) goes through these functions.
package ops

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// List limits
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 500
)

// dayMillis is one retention day in milliseconds.
const dayMillis int64 = 24 * 60 * 60 * 1000

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// nowMillis returns the current time in unix milliseconds.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// normalizeLimit clamps a list limit to [1, MaxPageLimit], defaulting when unset.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// cleanOptionalString trims s and returns nil if empty.
func cleanOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
