package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// GenerateRSAKey returns a 2048-bit RSA key.
func GenerateRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return key
}

// SignRS256 signs claims with key and sets the kid header. An empty kid
// leaves the header out.
func SignRS256(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	s, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign RS256 token")
	return s
}

// SignHS256 signs claims with an HMAC secret.
func SignHS256(t testing.TB, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err, "failed to sign HS256 token")
	return s
}

// JWKSServer serves a mutable JWKS document and counts requests.
type JWKSServer struct {
	*httptest.Server

	mu     sync.Mutex
	keys   map[string]*rsa.PublicKey
	extra  []map[string]string
	status int
	hits   atomic.Int64
}

// ServeJWKS starts a JWKS endpoint publishing keys. The server is closed
// when the test ends.
func ServeJWKS(t testing.TB, keys map[string]*rsa.PublicKey) *JWKSServer {
	t.Helper()
	s := &JWKSServer{keys: make(map[string]*rsa.PublicKey), status: http.StatusOK}
	for kid, k := range keys {
		s.keys[kid] = k
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL returns the JWKS endpoint URL.
func (s *JWKSServer) URL() string {
	return s.Server.URL + "/api/auth/jwks"
}

// SetKey publishes (or rotates in) a key under kid.
func (s *JWKSServer) SetKey(kid string, key *rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[kid] = key
}

// AddRawKey publishes an arbitrary JWK entry, for malformed-key tests.
func (s *JWKSServer) AddRawKey(jwk map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = append(s.extra, jwk)
}

// SetStatus makes the endpoint answer with status and no body when it is
// not 200.
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hits reports how many times the document was requested.
func (s *JWKSServer) Hits() int64 {
	return s.hits.Load()
}

func (s *JWKSServer) serve(w http.ResponseWriter, _ *http.Request) {
	s.hits.Add(1)

	s.mu.Lock()
	status := s.status
	entries := make([]map[string]string, 0, len(s.keys)+len(s.extra))
	for kid, pub := range s.keys {
		entries = append(entries, map[string]string{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	entries = append(entries, s.extra...)
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": entries})
}
