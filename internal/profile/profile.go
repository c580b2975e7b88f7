// Package profile manages buyer profiles and the API keys that
// authenticate them.
//
// The catalogue shorthand shape requires an authenticated caller whose
// identity resolves to a verified buyer profile; the profile supplies the
// buyer-side trade attributes stamped on normalized orders.
package profile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Errors
var (
	ErrNoProfile = errors.New("profile: no verified buyer profile")
	ErrNotFound  = errors.New("profile: not found")
)

// Profile is a registered buyer on this platform.
type Profile struct {
	Subject    string    `json:"subject"`    // authenticated identity
	Name       string    `json:"name"`
	PlatformID string    `json:"platformId"` // buyer-side network platform id
	DomainID   string    `json:"domainId"`   // buyer-side utility domain id (CA number)
	Verified   bool      `json:"verified"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Lookup resolves an authenticated identity to a verified buyer profile.
// This is the interface the request normalizer consumes.
type Lookup interface {
	// FindVerifiedBuyer returns the profile for subject, or ErrNoProfile
	// when the subject has no verified profile.
	FindVerifiedBuyer(ctx context.Context, subject string) (*Profile, error)
}

// Store persists buyer profiles.
type Store interface {
	Lookup
	Create(ctx context.Context, p *Profile) error
	FindByAPIKeyHash(ctx context.Context, hash string) (*Profile, error)
}

// HashKey returns the SHA256 hex digest used to store and look up API keys.
func HashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
