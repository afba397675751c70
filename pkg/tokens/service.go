// Package tokens issues the service's own credentials: short-lived
// HMAC-signed access tokens and opaque rotating refresh tokens.
//
// Refresh tokens are 32 random bytes, base64url encoded without padding.
// Only their SHA-256 hex digest is stored. Rotation and revocation are
// conditional updates, so replaying a rotated token fails and at most one
// of two concurrent rotations succeeds.
package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

const (
	// DefaultAccessTokenTTL is the access token lifetime.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshTokenTTL is the refresh token lifetime (30 days).
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultAlgorithm signs access tokens.
	DefaultAlgorithm = "HS256"

	// RecommendedSecretLength is the shortest secret that does not log a
	// warning at startup.
	RecommendedSecretLength = 32

	refreshTokenBytes = 32
	accessTokenType   = "access"
)

// Store persists refresh token rows.
type Store interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error

	// RotateRefreshToken revokes the active, unexpired row for oldHash and
	// inserts a row for newHash owned by the same user, atomically. It
	// returns that user id, or [sserr.CodeNotFound] when no active row
	// matched.
	RotateRefreshToken(ctx context.Context, oldHash, newHash string, now, newExpiresAt time.Time) (string, error)

	// RevokeRefreshToken sets revoked_at on the row for hash if it is not
	// already revoked, and reports whether a row changed.
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)
}

// Config configures a [Service].
type Config struct {
	Secret          string
	Algorithm       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// TokenPair is what a successful login returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type accessClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Service issues and checks legacy tokens. It is safe for concurrent use.
type Service struct {
	store      Store
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService validates cfg and returns a Service.
func NewService(store Store, cfg Config) (*Service, error) {
	if store == nil {
		return nil, sserr.New(sserr.CodeValidationRequired, "tokens: store is required")
	}
	if cfg.Secret == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "tokens: secret must not be empty")
	}
	if len(cfg.Secret) < RecommendedSecretLength {
		slog.Warn("tokens: signing secret is shorter than recommended",
			"length", len(cfg.Secret),
			"recommended", RecommendedSecretLength,
		)
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, sserr.Newf(sserr.CodeValidation,
			"tokens: algorithm %q is not an HMAC algorithm", cfg.Algorithm)
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &Service{
		store:      store,
		secret:     []byte(cfg.Secret),
		method:     method,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}, nil
}

// IssueAccessToken signs {sub, type:"access", iat, exp} for userID.
func (s *Service) IssueAccessToken(userID string) (string, error) {
	if userID == "" {
		return "", sserr.New(sserr.CodeValidationRequired, "tokens: user id is required")
	}
	now := s.now()
	claims := accessClaims{
		Type: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "tokens: failed to sign access token")
	}
	return signed, nil
}

// DecodeAccessToken returns the user id of a valid access token.
//
// Error codes returned:
//   - [sserr.CodeLegacyToken]: bad signature, non-matching algorithm,
//     expired, or a token type other than "access"
func (s *Service) DecodeAccessToken(token string) (string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeLegacyToken, "invalid token")
	}
	if claims.Type != accessTokenType {
		return "", sserr.Wrap(fmt.Errorf("tokens: unexpected token type %q", claims.Type),
			sserr.CodeLegacyToken, "invalid token")
	}
	if claims.Subject == "" {
		return "", sserr.Wrap(errors.New("tokens: token has no subject"),
			sserr.CodeLegacyToken, "invalid token")
	}
	return claims.Subject, nil
}

// IssueRefreshToken stores a new refresh token for userID and returns the
// raw value. The raw value is never persisted.
func (s *Service) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", sserr.New(sserr.CodeValidationRequired, "tokens: user id is required")
	}
	raw, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	row := models.NewRefreshToken(userID, HashToken(raw), 0)
	row.CreatedAt = s.now().UTC()
	row.ExpiresAt = row.CreatedAt.Add(s.refreshTTL)
	if err := s.store.CreateRefreshToken(ctx, row); err != nil {
		return "", err
	}
	return raw, nil
}

// Rotate exchanges a valid refresh token for a new one. The old token is
// revoked in the same transaction that stores the new one.
//
// Error codes returned:
//   - [sserr.CodeRefreshTokenInvalid]: unknown, revoked, or expired token
func (s *Service) Rotate(ctx context.Context, raw string) (newRaw, userID string, err error) {
	if raw == "" {
		return "", "", sserr.New(sserr.CodeRefreshTokenInvalid, "invalid refresh token")
	}
	newRaw, err = newRefreshToken()
	if err != nil {
		return "", "", err
	}
	now := s.now().UTC()
	userID, err = s.store.RotateRefreshToken(ctx, HashToken(raw), HashToken(newRaw), now, now.Add(s.refreshTTL))
	if err != nil {
		if sserr.IsNotFound(err) {
			return "", "", sserr.Wrap(err, sserr.CodeRefreshTokenInvalid, "invalid refresh token")
		}
		return "", "", err
	}
	return newRaw, userID, nil
}

// Revoke revokes raw and reports whether it was active. Unknown and
// already revoked tokens return false without an error.
func (s *Service) Revoke(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	revoked, err := s.store.RevokeRefreshToken(ctx, HashToken(raw), s.now().UTC())
	if err != nil {
		return false, err
	}
	if revoked {
		slog.DebugContext(ctx, "tokens: refresh token revoked")
	}
	return revoked, nil
}

// IssuePair issues an access token and a refresh token for userID.
func (s *Service) IssuePair(ctx context.Context, userID string) (TokenPair, error) {
	access, err := s.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// HashToken returns the SHA-256 hex digest stored for a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "tokens: failed to read random bytes")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
