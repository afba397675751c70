package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// maxTokenSize rejects oversized tokens before any parsing.
const maxTokenSize = 8192

// messageInvalidToken is the only verification failure text callers see.
const messageInvalidToken = "invalid token"

// KeySource resolves a key id to a verification key. *KeyCache
// implements it.
type KeySource interface {
	SigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

var _ KeySource = (*KeyCache)(nil)

// VerifierConfig configures a [Verifier]. An empty Audience disables the
// audience check.
type VerifierConfig struct {
	Issuer   string
	Audience string
}

// Claims are the verified claims of an external bearer token.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Name      string
	Picture   string
	Raw       map[string]any
}

// Verifier validates RS256 tokens issued by the external auth service.
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
	tracer   trace.Tracer
}

// NewVerifier returns a Verifier that resolves keys through keys.
func NewVerifier(keys KeySource, cfg VerifierConfig) (*Verifier, error) {
	if keys == nil {
		return nil, sserr.New(sserr.CodeValidationRequired, "auth: verifier requires a key source")
	}
	if cfg.Issuer == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "auth: verifier issuer must not be empty")
	}
	return &Verifier{
		keys:     keys,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Verify checks signature, algorithm, issuer, expiry, and (when
// configured) audience, and returns the claims.
//
// Every failure is a [sserr.CodeTokenVerification] error with the message
// "invalid token". The specific reason is kept as the error cause, set
// on the span, and logged at debug level; it is never meant for clients.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	ctx, span := v.tracer.Start(ctx, "auth.Verifier.Verify")
	defer span.End()

	claims, reason, err := v.verify(ctx, token)
	if err != nil {
		span.SetAttributes(attribute.String("auth.failure_reason", reason))
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		slog.DebugContext(ctx, "auth: token verification failed",
			"reason", reason,
			"error", err,
		)
		return nil, sserr.Wrap(err, sserr.CodeTokenVerification, messageInvalidToken)
	}
	span.SetAttributes(attribute.String("auth.subject", claims.Subject))
	return claims, nil
}

// verify returns a short machine-readable reason alongside any error.
func (v *Verifier) verify(ctx context.Context, token string) (*Claims, string, error) {
	if token == "" {
		return nil, "empty", errors.New("auth: token must not be empty")
	}
	if len(token) > maxTokenSize {
		return nil, "oversized", errors.New("auth: token exceeds maximum size")
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, "malformed", err
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, "missing_kid", errors.New("auth: token header missing kid")
	}

	key, err := v.keys.SigningKey(ctx, kid)
	if err != nil {
		if sserr.HasCode(err, sserr.CodeKeyNotFound) {
			return nil, "key_not_found", err
		}
		return nil, "key_fetch", err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return key, nil }, opts...)
	if err != nil {
		return nil, jwtReason(err), err
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, "claims", errors.New("auth: unexpected claims type")
	}
	return claimsFromMap(mc), "", nil
}

func jwtReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_claim"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "algorithm"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_yet_valid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}

func claimsFromMap(mc jwt.MapClaims) *Claims {
	c := &Claims{Raw: make(map[string]any, len(mc))}
	for k, val := range mc {
		c.Raw[k] = val
	}
	c.Subject, _ = mc.GetSubject()
	c.Issuer, _ = mc.GetIssuer()
	if aud, err := mc.GetAudience(); err == nil {
		c.Audience = []string(aud)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	c.Name, _ = mc["name"].(string)
	c.Picture, _ = mc["picture"].(string)
	return c
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
