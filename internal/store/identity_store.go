package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/learnhub-auth/pkg/clients/postgres"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

const (
	queryFindIdentity = `SELECT id::text, user_id::text, provider, provider_uid, union_id, created_at
FROM auth_identities WHERE provider = $1 AND provider_uid = $2`

	queryInsertUser = `INSERT INTO users (id, nickname, avatar_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`

	queryInsertIdentity = `INSERT INTO auth_identities (id, user_id, provider, provider_uid, union_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	queryGetUser = `SELECT id::text, nickname, avatar_url, created_at, updated_at
FROM users WHERE id = $1`
)

// IdentityStore persists users and their login identities.
type IdentityStore struct {
	db DB
}

func NewIdentityStore(db DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) FindIdentity(ctx context.Context, provider models.Provider, providerUID string) (*models.AuthIdentity, error) {
	var ident models.AuthIdentity
	var prov string
	err := s.db.QueryRow(ctx, queryFindIdentity, string(provider), providerUID).Scan(
		&ident.ID, &ident.UserID, &prov, &ident.ProviderUID, &ident.UnionID, &ident.CreatedAt,
	)
	if err != nil {
		return nil, postgres.ScanError(err, "store: identity not found")
	}
	ident.Provider = models.Provider(prov)
	return &ident, nil
}

// CreateUserWithIdentity inserts the user and the identity in one
// transaction. A duplicate (provider, provider_uid) rolls back both rows
// and returns [sserr.CodeConflictAlreadyExists].
func (s *IdentityStore) CreateUserWithIdentity(ctx context.Context, user *models.User, identity *models.AuthIdentity) error {
	if err := user.Validate(); err != nil {
		return sserr.Wrap(err, sserr.CodeValidation, "store: invalid user")
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, queryInsertUser,
			user.ID, user.Nickname, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
		); err != nil {
			return postgres.WrapError(err, "store: insert user failed")
		}
		if _, err := tx.Exec(ctx, queryInsertIdentity,
			identity.ID, identity.UserID, string(identity.Provider), identity.ProviderUID,
			identity.UnionID, identity.CreatedAt,
		); err != nil {
			if postgres.IsUniqueViolation(err, ConstraintIdentityProviderUID) {
				return sserr.Wrap(err, sserr.CodeConflictAlreadyExists, "store: identity already exists").
					WithDetail("constraint", ConstraintIdentityProviderUID)
			}
			return postgres.WrapError(err, "store: insert identity failed")
		}
		return nil
	})
}

// GetUser returns [sserr.CodeNotFoundUser] for unknown ids, including
// ids that are not UUIDs.
func (s *IdentityStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sserr.New(sserr.CodeNotFoundUser, "store: user not found")
	}
	var u models.User
	err := s.db.QueryRow(ctx, queryGetUser, id).Scan(
		&u.ID, &u.Nickname, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sserr.Wrap(err, sserr.CodeNotFoundUser, "store: user not found")
	}
	if err != nil {
		return nil, postgres.ScanError(err, "store: get user failed")
	}
	return &u, nil
}
