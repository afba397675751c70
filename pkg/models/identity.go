package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider names an identity source. The pair (Provider, ProviderUID) is
// unique across all identities.
type Provider string

const (
	// ProviderBetterAuth identities are created from verified external
	// bearer tokens; ProviderUID is the token subject.
	ProviderBetterAuth Provider = "better_auth"

	// ProviderPhone identities are created by SMS login; ProviderUID is
	// the phone number.
	ProviderPhone Provider = "phone"

	// ProviderWeChatWeb identities are created by the WeChat web QR
	// login; ProviderUID is the WeChat openid.
	ProviderWeChatWeb Provider = "wechat_web"
)

func (p Provider) String() string {
	return string(p)
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderBetterAuth, ProviderPhone, ProviderWeChatWeb:
		return true
	default:
		return false
	}
}

// AuthIdentity links a User to one external login.
type AuthIdentity struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Provider    Provider  `json:"provider" db:"provider"`
	ProviderUID string    `json:"provider_uid" db:"provider_uid"`
	UnionID     *string   `json:"union_id,omitempty" db:"union_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// NewAuthIdentity returns an identity for userID. The provider name is not
// restricted to the known constants so deployments can add their own
// external issuers; it must only be non-empty.
func NewAuthIdentity(userID string, provider Provider, providerUID string) (*AuthIdentity, error) {
	if userID == "" {
		return nil, errors.New("models: identity userID must not be empty")
	}
	if provider == "" {
		return nil, errors.New("models: identity provider must not be empty")
	}
	if providerUID == "" {
		return nil, fmt.Errorf("models: identity provider_uid must not be empty for provider %q", provider)
	}
	return &AuthIdentity{
		ID:          uuid.NewString(),
		UserID:      userID,
		Provider:    provider,
		ProviderUID: providerUID,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
