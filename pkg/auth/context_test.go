package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestPrincipalFromContext_Missing(t *testing.T) {
	t.Parallel()
	p, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, p)
}

func TestPrincipalFromContext_NilPrincipal(t *testing.T) {
	t.Parallel()
	ctx := ContextWithPrincipal(context.Background(), nil)
	_, ok := PrincipalFromContext(ctx)
	assert.False(t, ok)
}

func TestPrincipalFromContext_RoundTrip(t *testing.T) {
	t.Parallel()
	want := newPrincipal("user-1", SourceLegacy, map[string]any{"sub": "user-1", "name": "Ada"})
	ctx := ContextWithPrincipal(context.Background(), want)

	got, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, want, got)
	assert.Equal(t, "Ada", got.Claim("name"))
	assert.Empty(t, got.Claim("missing"))
}

func TestNewPrincipal_CopiesClaims(t *testing.T) {
	t.Parallel()
	claims := map[string]any{"sub": "user-1"}
	p := newPrincipal("user-1", SourceExternal, claims)

	claims["sub"] = "tampered"
	assert.Equal(t, "user-1", p.Claim("sub"))
}

func TestMustPrincipalFromContext(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { MustPrincipalFromContext(context.Background()) })

	p := newPrincipal("dev-user", SourceDev, nil)
	ctx := ContextWithPrincipal(context.Background(), p)
	assert.NotPanics(t, func() {
		assert.Equal(t, "dev-user", MustPrincipalFromContext(ctx).Subject)
	})
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	t.Parallel()
	_, ok := TraceIDFromContext(context.Background())
	assert.False(t, ok)
}

func TestTraceIDFromContext_WithSpan(t *testing.T) {
	t.Parallel()
	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	got, ok := TraceIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", got)
}
