package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenState is derived from a token row, never stored.
type RefreshTokenState string

const (
	RefreshTokenActive  RefreshTokenState = "ACTIVE"
	RefreshTokenRevoked RefreshTokenState = "REVOKED"
	RefreshTokenExpired RefreshTokenState = "EXPIRED"
)

// RefreshToken is the stored form of an opaque refresh token. Only the
// SHA-256 hex digest of the raw token is kept.
//
// A token moves from ACTIVE to REVOKED (rotation or logout) or to EXPIRED
// (time). Both are terminal; revocation wins when both apply.
type RefreshToken struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// NewRefreshToken returns an active token row for userID that expires
// ttl from now.
func NewRefreshToken(userID, tokenHash string, ttl time.Duration) *RefreshToken {
	now := time.Now().UTC()
	return &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// State reports the token state at now.
func (t *RefreshToken) State(now time.Time) RefreshTokenState {
	switch {
	case t.RevokedAt != nil:
		return RefreshTokenRevoked
	case !t.ExpiresAt.After(now):
		return RefreshTokenExpired
	default:
		return RefreshTokenActive
	}
}

// IsValid reports whether the token can be rotated at now.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return t.State(now) == RefreshTokenActive
}
