package testutil

import (
	"context"
	"sync"
	"time"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

type identityKey struct {
	provider models.Provider
	uid      string
}

// MemoryIdentityStore is an in-memory identity store. Like the SQL
// store it rejects a duplicate (provider, provider_uid) pair and then
// keeps neither the user nor the identity.
type MemoryIdentityStore struct {
	mu         sync.Mutex
	users      map[string]models.User
	identities map[identityKey]models.AuthIdentity
	conflicts  int
}

// NewMemoryIdentityStore returns an empty store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		users:      make(map[string]models.User),
		identities: make(map[identityKey]models.AuthIdentity),
	}
}

func (s *MemoryIdentityStore) FindIdentity(_ context.Context, provider models.Provider, providerUID string) (*models.AuthIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[identityKey{provider, providerUID}]
	if !ok {
		return nil, sserr.NotFound("identity not found")
	}
	return &ident, nil
}

func (s *MemoryIdentityStore) CreateUserWithIdentity(_ context.Context, user *models.User, identity *models.AuthIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identityKey{identity.Provider, identity.ProviderUID}
	if _, exists := s.identities[key]; exists {
		s.conflicts++
		return sserr.New(sserr.CodeConflictAlreadyExists, "identity already exists").
			WithDetail("constraint", "uq_auth_identity_provider_uid")
	}
	s.users[user.ID] = *user
	s.identities[key] = *identity
	return nil
}

func (s *MemoryIdentityStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sserr.New(sserr.CodeNotFoundUser, "user not found")
	}
	return &u, nil
}

// UserCount reports how many users exist.
func (s *MemoryIdentityStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Conflicts reports how many inserts were rejected as duplicates.
func (s *MemoryIdentityStore) Conflicts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflicts
}

// MemoryTokenStore is an in-memory refresh token store with the same
// conditional-update semantics as the SQL store.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

// NewMemoryTokenStore returns an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]models.RefreshToken)}
}

func (s *MemoryTokenStore) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.TokenHash]; exists {
		return sserr.New(sserr.CodeConflictAlreadyExists, "refresh token already exists")
	}
	s.tokens[token.TokenHash] = *token
	return nil
}

func (s *MemoryTokenStore) RotateRefreshToken(_ context.Context, oldHash, newHash string, now, newExpiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tokens[oldHash]
	if !ok || !old.IsValid(now) {
		return "", sserr.NotFound("refresh token not found")
	}
	if _, exists := s.tokens[newHash]; exists {
		return "", sserr.New(sserr.CodeConflictAlreadyExists, "refresh token already exists")
	}
	revokedAt := now
	old.RevokedAt = &revokedAt
	s.tokens[oldHash] = old

	next := models.NewRefreshToken(old.UserID, newHash, 0)
	next.ExpiresAt = newExpiresAt
	s.tokens[newHash] = *next
	return old.UserID, nil
}

func (s *MemoryTokenStore) RevokeRefreshToken(_ context.Context, hash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	revokedAt := now
	t.RevokedAt = &revokedAt
	s.tokens[hash] = t
	return true, nil
}

// Token returns a copy of the stored row for hash.
func (s *MemoryTokenStore) Token(hash string) (models.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	return t, ok
}

// Expire moves the expiry of the row for hash to at.
func (s *MemoryTokenStore) Expire(hash string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[hash]; ok {
		t.ExpiresAt = at
		s.tokens[hash] = t
	}
}

// Len reports how many rows exist.
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// MemoryOtpStore is an in-memory SMS OTP store.
type MemoryOtpStore struct {
	mu   sync.Mutex
	otps []models.SmsOtp
}

// NewMemoryOtpStore returns an empty store.
func NewMemoryOtpStore() *MemoryOtpStore {
	return &MemoryOtpStore{}
}

func (s *MemoryOtpStore) CreateOtp(_ context.Context, otp *models.SmsOtp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps = append(s.otps, *otp)
	return nil
}

// LatestUnconsumedOtp returns the most recently created unconsumed code
// for phone. Rows are appended in creation order.
func (s *MemoryOtpStore) LatestUnconsumedOtp(_ context.Context, phone string) (*models.SmsOtp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.otps) - 1; i >= 0; i-- {
		o := s.otps[i]
		if o.Phone == phone && o.ConsumedAt == nil {
			return &o, nil
		}
	}
	return nil, sserr.NotFound("otp not found")
}

func (s *MemoryOtpStore) ConsumeOtp(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.otps {
		if s.otps[i].ID != id {
			continue
		}
		if s.otps[i].ConsumedAt != nil {
			return false, nil
		}
		consumedAt := now
		s.otps[i].ConsumedAt = &consumedAt
		return true, nil
	}
	return false, nil
}

// Otps returns a copy of every stored row.
func (s *MemoryOtpStore) Otps() []models.SmsOtp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SmsOtp(nil), s.otps...)
}

// ExpireAll moves every row's expiry to at.
func (s *MemoryOtpStore) ExpireAll(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.otps {
		s.otps[i].ExpiresAt = at
	}
}
