package auth

import (
	"context"
	"maps"

	"go.opentelemetry.io/otel/trace"
)

type contextKey int

const principalKey contextKey = iota

// Source says how a principal was authenticated.
type Source string

const (
	// SourceExternal principals carry a verified token from the external
	// auth service. Subject is the external subject; the local user is
	// resolved by the identity provisioner.
	SourceExternal Source = "external"

	// SourceLegacy principals carry a self-issued access token. Subject is
	// the local user id.
	SourceLegacy Source = "legacy"

	// SourceDev principals are injected by the development bypass.
	SourceDev Source = "dev"
)

// Principal is the authenticated caller attached to a request context.
// It is created once by the gateway and not modified afterwards; Claims
// is a private copy.
type Principal struct {
	Subject string
	Source  Source
	Claims  map[string]any
}

func newPrincipal(subject string, source Source, claims map[string]any) *Principal {
	return &Principal{Subject: subject, Source: source, Claims: maps.Clone(claims)}
}

// Claim returns a string claim, or "" when absent or not a string.
func (p *Principal) Claim(name string) string {
	s, _ := p.Claims[name].(string)
	return s
}

// ContextWithPrincipal attaches p to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal set by the gateway, if any.
//
//	p, ok := auth.PrincipalFromContext(ctx)
//	if !ok {
//	    return sserr.Unauthorized("missing principal")
//	}
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// MustPrincipalFromContext panics when no principal is present. Only use
// it behind the gateway on routes that require authentication.
func MustPrincipalFromContext(ctx context.Context) *Principal {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		panic("auth: no principal in context; ensure the auth gateway is installed")
	}
	return p
}

// TraceIDFromContext returns the active trace id for log correlation.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
