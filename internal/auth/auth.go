// Package auth provides API key authentication for the bridge.
//
// Authentication model:
// - Health, metrics and callback endpoints: no auth required
// - Transaction endpoints: API key resolves to a buyer profile;
//   catalogue shorthand requests additionally require a verified profile
// - Keys are provisioned alongside buyer profiles and stored hashed
package auth

import (
	"strings"

	"github.com/onixgrid/bapbridge/internal/profile"
)

const (
	// ContextKeyProfile is the key for storing the resolved profile in gin context
	ContextKeyProfile = "authProfile"
	// ContextKeySubject is the key for storing the authenticated subject
	ContextKeySubject = "authSubject"
)

// ExtractKey pulls a raw API key out of an Authorization or X-API-Key header value.
// Returns "" when no credential is present.
func ExtractKey(authorization, apiKeyHeader string) string {
	if authorization != "" {
		return strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	}
	return strings.TrimSpace(apiKeyHeader)
}

// HashKey is re-exported so handlers never touch the raw key after extraction.
func HashKey(raw string) string { return profile.HashKey(raw) }
