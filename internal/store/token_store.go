package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/learnhub-auth/pkg/clients/postgres"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

const (
	queryInsertRefreshToken = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)`

	// The WHERE clause is the whole validity check; two concurrent
	// rotations of the same hash cannot both match.
	queryRevokeActiveRefreshToken = `UPDATE refresh_tokens SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
RETURNING user_id::text`

	queryRevokeRefreshToken = `UPDATE refresh_tokens SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL`
)

// RefreshTokenStore persists hashed refresh tokens.
type RefreshTokenStore struct {
	db DB
}

func NewRefreshTokenStore(db DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

func (s *RefreshTokenStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	_, err := s.db.Exec(ctx, queryInsertRefreshToken,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt,
	)
	return err
}

// RotateRefreshToken revokes the active row for oldHash and inserts its
// successor in the same transaction.
func (s *RefreshTokenStore) RotateRefreshToken(ctx context.Context, oldHash, newHash string, now, newExpiresAt time.Time) (string, error) {
	var userID string
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, queryRevokeActiveRefreshToken, oldHash, now).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return sserr.Wrap(err, sserr.CodeNotFound, "store: refresh token not found")
		}
		if err != nil {
			return postgres.WrapError(err, "store: revoke refresh token failed")
		}
		if _, err := tx.Exec(ctx, queryInsertRefreshToken,
			uuid.NewString(), userID, newHash, newExpiresAt, now,
		); err != nil {
			return postgres.WrapError(err, "store: insert refresh token failed")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *RefreshTokenStore) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, queryRevokeRefreshToken, hash, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
