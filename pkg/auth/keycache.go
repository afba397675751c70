package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

const tracerName = "github.com/StricklySoft/learnhub-auth/pkg/auth"

const (
	// DefaultJWKSCacheTTL is how long a fetched key set is trusted.
	DefaultJWKSCacheTTL = 6 * time.Hour

	// DefaultJWKSFetchTimeout bounds a single JWKS request.
	DefaultJWKSFetchTimeout = 10 * time.Second

	maxJWKSBodySize = 1 << 20
)

// HTTPClient is the subset of *http.Client used to fetch key sets.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeyCacheConfig configures a [KeyCache].
type KeyCacheConfig struct {
	JWKSURL    string
	TTL        time.Duration
	HTTPClient HTTPClient
}

// KeyCache maps key ids to RSA public keys from a remote JWKS document.
//
// The whole set shares one expiry. A lookup after expiry refetches the
// set; a lookup for an unknown kid forces at most one extra refetch so
// keys rotated in by the issuer are picked up without waiting for the
// TTL. Concurrent refetches are collapsed into one request. The mutex
// is never held during network I/O.
type KeyCache struct {
	url    string
	ttl    time.Duration
	client HTTPClient
	tracer trace.Tracer
	group  singleflight.Group
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

// NewKeyCache returns an empty cache; the first lookup fetches the set.
func NewKeyCache(cfg KeyCacheConfig) (*KeyCache, error) {
	if cfg.JWKSURL == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "auth: JWKS URL must not be empty")
	}
	if cfg.TTL < 0 {
		return nil, sserr.New(sserr.CodeValidation, "auth: JWKS cache TTL must be non-negative")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultJWKSCacheTTL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultJWKSFetchTimeout}
	}
	return &KeyCache{
		url:    cfg.JWKSURL,
		ttl:    cfg.TTL,
		client: client,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		keys:   make(map[string]*rsa.PublicKey),
	}, nil
}

// SigningKey returns the public key for kid.
//
// Error codes returned:
//   - [sserr.CodeKeyFetch]: the JWKS endpoint could not be read or decoded
//   - [sserr.CodeKeyNotFound]: kid is absent even after a forced refresh
func (c *KeyCache) SigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if c.expired() {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	return nil, sserr.Newf(sserr.CodeKeyNotFound, "auth: signing key %q not found in JWKS", kid)
}

// Refresh refetches the key set and replaces the cached one. Callers
// that arrive while a refresh is in flight share its result.
func (c *KeyCache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("jwks", func() (any, error) {
		keys, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.expiresAt = c.now().Add(c.ttl)
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

func (c *KeyCache) expired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.now().Before(c.expiresAt)
}

func (c *KeyCache) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	return key, ok
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *KeyCache) fetch(ctx context.Context) (keys map[string]*rsa.PublicKey, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.KeyCache.Refresh",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", c.url)),
	)
	defer func() {
		finishSpan(span, err)
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeKeyFetch, "auth: failed to build JWKS request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeKeyFetch, "auth: JWKS request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, sserr.Newf(sserr.CodeKeyFetch, "auth: JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodySize))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeKeyFetch, "auth: failed to read JWKS response")
	}
	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeKeyFetch, "auth: failed to parse JWKS JSON")
	}

	keys = make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue // malformed keys are skipped
		}
		keys[k.Kid] = pub
	}
	span.SetAttributes(attribute.Int("auth.jwks.keys", len(keys)))
	return keys, nil
}

func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, errors.New("auth: RSA key has empty modulus or exponent")
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return nil, errors.New("auth: RSA exponent out of range")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
