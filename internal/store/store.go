// Package store holds the PostgreSQL implementations of the identity,
// refresh token, and SMS OTP stores, and the goose migrations that
// create their tables.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/learnhub-auth/pkg/clients/postgres"
	"github.com/StricklySoft/learnhub-auth/pkg/identity"
	"github.com/StricklySoft/learnhub-auth/pkg/otp"
	"github.com/StricklySoft/learnhub-auth/pkg/tokens"
)

// Constraint names from the initial migration.
const (
	ConstraintIdentityProviderUID = "uq_auth_identity_provider_uid"
	ConstraintRefreshTokenHash    = "uq_refresh_tokens_token_hash"
)

// DB is what the stores need from [postgres.Client].
type DB interface {
	postgres.Querier
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

var _ DB = (*postgres.Client)(nil)

// Stores bundles the three stores over one database.
type Stores struct {
	Identities    *IdentityStore
	RefreshTokens *RefreshTokenStore
	Otps          *OtpStore
}

// New returns every store backed by db.
func New(db DB) *Stores {
	return &Stores{
		Identities:    NewIdentityStore(db),
		RefreshTokens: NewRefreshTokenStore(db),
		Otps:          NewOtpStore(db),
	}
}

var (
	_ identity.Store = (*IdentityStore)(nil)
	_ tokens.Store   = (*RefreshTokenStore)(nil)
	_ otp.Store      = (*OtpStore)(nil)
)
