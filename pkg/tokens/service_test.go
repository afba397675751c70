package tokens

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/learnhub-auth/internal/testutil"
	"github.com/StricklySoft/learnhub-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

func newTestService(t *testing.T) (*Service, *testutil.MemoryTokenStore) {
	t.Helper()
	store := testutil.NewMemoryTokenStore()
	svc, err := NewService(store, Config{Secret: fixtures.JWTSecret})
	require.NoError(t, err)
	return svc, store
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemoryTokenStore()

	_, err := NewService(nil, Config{Secret: fixtures.JWTSecret})
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	_, err = NewService(store, Config{})
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	for _, alg := range []string{"RS256", "none", "bogus"} {
		_, err = NewService(store, Config{Secret: fixtures.JWTSecret, Algorithm: alg})
		testutil.AssertErrorCode(t, err, sserr.CodeValidation, alg)
	}

	svc, err := NewService(store, Config{Secret: "short", Algorithm: "HS512"})
	require.NoError(t, err)
	assert.Equal(t, "HS512", svc.method.Alg())
	assert.Equal(t, DefaultAccessTokenTTL, svc.accessTTL)
	assert.Equal(t, DefaultRefreshTokenTTL, svc.refreshTTL)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	token, err := svc.IssueAccessToken("user-1")
	require.NoError(t, err)

	userID, err := svc.DecodeAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS256", parsed.Header["alg"])
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "access", claims["type"])
	assert.Contains(t, claims, "iat")
	assert.Contains(t, claims, "exp")
}

func TestIssueAccessToken_RequiresUser(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	_, err := svc.IssueAccessToken("")
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
}

func TestDecodeAccessToken_Rejections(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	now := time.Now()

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":  "user-1",
			"type": "access",
			"iat":  now.Unix(),
			"exp":  now.Add(time.Hour).Unix(),
		}
	}
	with := func(key string, value any) jwt.MapClaims {
		c := base()
		if value == nil {
			delete(c, key)
		} else {
			c[key] = value
		}
		return c
	}

	key := testutil.GenerateRSAKey(t)
	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", testutil.SignHS256(t, "another-secret-that-is-long-enough", base())},
		{"expired", testutil.SignHS256(t, fixtures.JWTSecret, with("exp", now.Add(-time.Minute).Unix()))},
		{"missing exp", testutil.SignHS256(t, fixtures.JWTSecret, with("exp", nil))},
		{"refresh type", testutil.SignHS256(t, fixtures.JWTSecret, with("type", "refresh"))},
		{"missing type", testutil.SignHS256(t, fixtures.JWTSecret, with("type", nil))},
		{"missing subject", testutil.SignHS256(t, fixtures.JWTSecret, with("sub", nil))},
		{"rsa signed", testutil.SignRS256(t, key, fixtures.KeyID, base())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.DecodeAccessToken(tt.token)
			testutil.RequireErrorCode(t, err, sserr.CodeLegacyToken)
			ssErr, _ := sserr.AsError(err)
			assert.Equal(t, "invalid token", ssErr.Message)
		})
	}
}

func TestDecodeAccessToken_RejectsOtherHMACAlgorithm(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub":  "user-1",
		"type": "access",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(fixtures.JWTSecret))
	require.NoError(t, err)

	_, err = svc.DecodeAccessToken(token)
	testutil.RequireErrorCode(t, err, sserr.CodeLegacyToken)
}

func TestDecodeAccessToken_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	issued := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	token, err := svc.IssueAccessToken("user-1")
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(DefaultAccessTokenTTL - time.Second) }
	_, err = svc.DecodeAccessToken(token)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(DefaultAccessTokenTTL + time.Second) }
	_, err = svc.DecodeAccessToken(token)
	testutil.RequireErrorCode(t, err, sserr.CodeLegacyToken)
}

func TestIssueRefreshToken_StoresOnlyHash(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)

	raw, err := svc.IssueRefreshToken(context.Background(), "user-1")
	require.NoError(t, err)

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)

	row, ok := store.Token(HashToken(raw))
	require.True(t, ok)
	assert.Equal(t, "user-1", row.UserID)
	assert.Len(t, row.TokenHash, 64)
	assert.NotEqual(t, raw, row.TokenHash)
	assert.Equal(t, models.RefreshTokenActive, row.State(time.Now()))
	assert.WithinDuration(t, time.Now().Add(DefaultRefreshTokenTTL), row.ExpiresAt, 5*time.Second)

	_, err = svc.IssueRefreshToken(context.Background(), "")
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
}

func TestRotate_ReplacesToken(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	r1, err := svc.IssueRefreshToken(ctx, "user-1")
	require.NoError(t, err)

	r2, userID, err := svc.Rotate(ctx, r1)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.NotEqual(t, r1, r2)

	old, _ := store.Token(HashToken(r1))
	assert.Equal(t, models.RefreshTokenRevoked, old.State(time.Now()))
	next, _ := store.Token(HashToken(r2))
	assert.Equal(t, models.RefreshTokenActive, next.State(time.Now()))

	// Replaying the rotated token fails.
	_, _, err = svc.Rotate(ctx, r1)
	testutil.RequireErrorCode(t, err, sserr.CodeRefreshTokenInvalid)

	// The new token still works once.
	_, _, err = svc.Rotate(ctx, r2)
	require.NoError(t, err)
}

func TestRotate_InvalidTokens(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Rotate(ctx, "")
	testutil.RequireErrorCode(t, err, sserr.CodeRefreshTokenInvalid)

	_, _, err = svc.Rotate(ctx, "never-issued")
	testutil.RequireErrorCode(t, err, sserr.CodeRefreshTokenInvalid)

	expired, err := svc.IssueRefreshToken(ctx, "user-1")
	require.NoError(t, err)
	store.Expire(HashToken(expired), time.Now().Add(-time.Second))
	_, _, err = svc.Rotate(ctx, expired)
	testutil.RequireErrorCode(t, err, sserr.CodeRefreshTokenInvalid)

	revoked, err := svc.IssueRefreshToken(ctx, "user-1")
	require.NoError(t, err)
	ok, err := svc.Revoke(ctx, revoked)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = svc.Rotate(ctx, revoked)
	testutil.RequireErrorCode(t, err, sserr.CodeRefreshTokenInvalid)
}

func TestRotate_ConcurrentRotationsSucceedOnce(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	raw, err := svc.IssueRefreshToken(ctx, "user-1")
	require.NoError(t, err)

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.Rotate(ctx, raw); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.True(t, sserr.HasCode(err, sserr.CodeRefreshTokenInvalid))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestRevoke(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	raw, err := svc.IssueRefreshToken(ctx, "user-1")
	require.NoError(t, err)

	ok, err := svc.Revoke(ctx, raw)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Revoke(ctx, raw)
	require.NoError(t, err)
	assert.False(t, ok, "second revoke reports nothing changed")

	ok, err = svc.Revoke(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Revoke(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIssuePair(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)

	pair, err := svc.IssuePair(context.Background(), "user-1")
	require.NoError(t, err)

	userID, err := svc.DecodeAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	_, ok := store.Token(HashToken(pair.RefreshToken))
	assert.True(t, ok)
}

func TestHashToken(t *testing.T) {
	t.Parallel()
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashToken("abc"))
}
