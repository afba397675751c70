// Package identity maps external login subjects to local users.
//
// An identity is the pair (provider, provider_uid). The first time a pair
// is seen, a user and the identity row are created together; afterwards
// the same user id is returned. The database unique constraint on the
// pair is the only guard against duplicate users: concurrent first logins
// race on the insert, the losers roll back and re-read the winner's row.
package identity

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

const tracerName = "github.com/StricklySoft/learnhub-auth/pkg/identity"

// Store persists users and identities.
type Store interface {
	// FindIdentity returns the identity for the pair or an error with
	// [sserr.CodeNotFound].
	FindIdentity(ctx context.Context, provider models.Provider, providerUID string) (*models.AuthIdentity, error)

	// CreateUserWithIdentity inserts both rows in one transaction. When
	// the pair already exists it returns [sserr.CodeConflictAlreadyExists]
	// and neither row is kept.
	CreateUserWithIdentity(ctx context.Context, user *models.User, identity *models.AuthIdentity) error

	// GetUser returns the user or an error with [sserr.CodeNotFoundUser].
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Profile is the optional display data copied onto a new user.
type Profile struct {
	Nickname  string
	AvatarURL string
}

// ProfileFromClaims reads "name" and "picture" from token claims.
func ProfileFromClaims(claims map[string]any) Profile {
	var p Profile
	p.Nickname, _ = claims["name"].(string)
	p.AvatarURL, _ = claims["picture"].(string)
	return p
}

// Provisioner resolves identities to user ids, creating users on first
// sight. It is safe for concurrent use.
type Provisioner struct {
	store  Store
	logger *slog.Logger
	tracer trace.Tracer
}

// NewProvisioner returns a Provisioner over store. A nil logger uses
// slog.Default().
func NewProvisioner(store Store, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		store:  store,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// ResolveOrCreate returns the user id linked to (provider, subject),
// creating the user and identity if needed. Calling it any number of
// times, concurrently or not, yields the same id and exactly one user.
// profile is only used when a user is created.
//
// Error codes returned:
//   - [sserr.CodeValidationRequired]: empty provider or subject
//   - [sserr.CodeProvisioning]: the insert conflicted but no identity
//     was found on re-query
//   - storage errors as returned by the Store
func (p *Provisioner) ResolveOrCreate(ctx context.Context, provider models.Provider, subject string, profile Profile) (userID string, err error) {
	if provider == "" || subject == "" {
		return "", sserr.New(sserr.CodeValidationRequired, "identity: provider and subject are required")
	}

	ctx, span := p.tracer.Start(ctx, "identity.Provisioner.ResolveOrCreate",
		trace.WithAttributes(attribute.String("identity.provider", string(provider))),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ident, err := p.store.FindIdentity(ctx, provider, subject)
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("identity.created", false))
		return ident.UserID, nil
	case !sserr.IsNotFound(err):
		return "", err
	}

	user := models.NewUser(profile.Nickname, profile.AvatarURL)
	ident, err = models.NewAuthIdentity(user.ID, provider, subject)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeValidation, "identity: invalid identity")
	}

	err = p.store.CreateUserWithIdentity(ctx, user, ident)
	if err == nil {
		span.SetAttributes(attribute.Bool("identity.created", true))
		p.logger.InfoContext(ctx, "identity: provisioned new user",
			"provider", provider,
			"user_id", user.ID,
		)
		return user.ID, nil
	}
	if !sserr.IsConflict(err) {
		return "", err
	}

	// Lost the insert race; the winner's row must be visible now.
	existing, findErr := p.store.FindIdentity(ctx, provider, subject)
	if findErr == nil {
		span.SetAttributes(attribute.Bool("identity.created", false))
		return existing.UserID, nil
	}
	if !sserr.IsNotFound(findErr) {
		return "", findErr
	}

	p.logger.ErrorContext(ctx, "identity: insert conflicted but identity not found on re-query",
		"provider", provider,
		"provider_uid", subject,
		"insert_error", err,
	)
	return "", sserr.Wrap(err, sserr.CodeProvisioning, "identity creation failed").
		WithDetails(map[string]any{"provider": string(provider), "provider_uid": subject})
}

// User loads a user by id.
//
// Error codes returned:
//   - [sserr.CodeNotFoundUser]: no such user
func (p *Provisioner) User(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, sserr.New(sserr.CodeNotFoundUser, "user not found")
	}
	return p.store.GetUser(ctx, id)
}
