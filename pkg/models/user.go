// Package models defines the persistent records of the LearnHub auth
// core. Users own everything else: an AuthIdentity links a user to an
// external login (phone number, WeChat account, or an externally issued
// token subject), RefreshToken rows back the legacy token lifecycle, and
// SmsOtp rows hold one-shot login codes.
//
// Rows are never deleted by the auth core. Refresh tokens are revoked by
// setting RevokedAt; OTPs are consumed by setting ConsumedAt.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// User is the local account record. Nickname and AvatarURL are nullable
// and come from the identity provider's profile when one is available.
type User struct {
	ID        string    `json:"id" db:"id"`
	Nickname  *string   `json:"nickname" db:"nickname"`
	AvatarURL *string   `json:"avatar_url" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewUser returns a User with a fresh UUID and UTC timestamps. Empty
// profile values are stored as NULL.
func NewUser(nickname, avatarURL string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.NewString(),
		Nickname:  nullable(nickname),
		AvatarURL: nullable(avatarURL),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the fields the database requires.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("models: user ID is required")
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		return errors.New("models: user timestamps are required")
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
