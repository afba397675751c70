package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// HeaderAuthorization is the bearer token header, lower-cased so it also
// matches gRPC metadata keys.
const HeaderAuthorization = "authorization"

const bearerScheme = "bearer"

// DefaultDevSubject is the subject injected by the development bypass
// when none is configured.
const DefaultDevSubject = "dev-user"

// TokenVerifier verifies external bearer tokens. *Verifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

var _ TokenVerifier = (*Verifier)(nil)

// LegacyDecoder decodes self-issued access tokens into a local user id.
type LegacyDecoder interface {
	DecodeAccessToken(token string) (string, error)
}

// GatewayConfig configures a [Gateway]. DevBypass must stay off outside
// local development.
type GatewayConfig struct {
	DevBypass  bool
	DevSubject string
}

// Gateway turns an Authorization header into a [Principal].
//
// Decision order:
//  1. dev bypass on: a fixed dev principal, no verification
//  2. no header: the request continues unauthenticated
//  3. header not "Bearer <token>": 401 "invalid authorization header"
//  4. token rejected: 401 "invalid token"
//
// HMAC-signed tokens go to the legacy decoder when one is configured;
// everything else goes to the external verifier.
type Gateway struct {
	verifier TokenVerifier
	legacy   LegacyDecoder
	cfg      GatewayConfig
}

// NewGateway builds a gateway. legacy may be nil, in which case every
// token is sent to verifier.
func NewGateway(verifier TokenVerifier, legacy LegacyDecoder, cfg GatewayConfig) *Gateway {
	if cfg.DevSubject == "" {
		cfg.DevSubject = DefaultDevSubject
	}
	return &Gateway{verifier: verifier, legacy: legacy, cfg: cfg}
}

// Authenticate applies the decision table to one header value. It
// returns (nil, nil) when the request carries no credentials.
//
// Error codes returned, all 401:
//   - [sserr.CodeAuthorizationHeader]: malformed header
//   - [sserr.CodeTokenVerification]: external token rejected
//   - [sserr.CodeLegacyToken]: legacy token rejected
func (g *Gateway) Authenticate(ctx context.Context, header string) (*Principal, error) {
	if g.cfg.DevBypass {
		return newPrincipal(g.cfg.DevSubject, SourceDev, map[string]any{"sub": g.cfg.DevSubject}), nil
	}
	if header == "" {
		return nil, nil
	}

	token, ok := ExtractBearerToken(header)
	if !ok {
		return nil, sserr.New(sserr.CodeAuthorizationHeader, "invalid authorization header")
	}

	if g.legacy != nil && isHMACToken(token) {
		userID, err := g.legacy.DecodeAccessToken(token)
		if err != nil {
			return nil, err
		}
		return newPrincipal(userID, SourceLegacy, map[string]any{"sub": userID, "type": "access"}), nil
	}

	if g.verifier == nil {
		return nil, sserr.New(sserr.CodeTokenVerification, messageInvalidToken)
	}
	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return newPrincipal(claims.Subject, SourceExternal, claims.Raw), nil
}

// ExtractBearerToken returns the token from "Bearer <token>". The scheme
// is case-insensitive and the token must be non-empty.
func ExtractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// isHMACToken peeks at the unverified header. Unparseable tokens are
// left to the external verifier, which rejects them.
func isHMACToken(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	alg, _ := parsed.Header["alg"].(string)
	return strings.HasPrefix(strings.ToUpper(alg), "HS")
}

// HTTPMiddleware is the net/http adapter. Rejections are written as a
// JSON body {"code":401,"message":...}.
func (g *Gateway) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Authenticate(r.Context(), r.Header.Get(HeaderAuthorization))
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		if p != nil {
			r = r.WithContext(ContextWithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponder writes a rejection for the gin adapter, so the server
// can use its own response envelope.
type ErrorResponder func(c *gin.Context, err *sserr.Error)

// GinMiddleware is the gin adapter. respond may be nil, in which case a
// bare {"code":401,"message":...} body is written.
func (g *Gateway) GinMiddleware(respond ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := g.Authenticate(c.Request.Context(), c.GetHeader(HeaderAuthorization))
		if err != nil {
			ssErr := sserr.FromError(err)
			if respond != nil {
				respond(c, ssErr)
			} else {
				c.AbortWithStatusJSON(ssErr.HTTPStatus(), gin.H{"code": ssErr.HTTPStatus(), "message": ssErr.Message})
			}
			c.Abort()
			return
		}
		if p != nil {
			c.Request = c.Request.WithContext(ContextWithPrincipal(c.Request.Context(), p))
		}
		c.Next()
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	ssErr := sserr.FromError(err)
	status := ssErr.HTTPStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": status, "message": ssErr.Message})
}
