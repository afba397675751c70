package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// mockServerStream supplies a context to the stream interceptor.
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context { return m.ctx }

func incoming(header string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, header))
}

func TestUnaryServerInterceptor_ValidToken(t *testing.T) {
	t.Parallel()
	g := NewGateway(&stubVerifier{claims: externalClaims()}, nil, GatewayConfig{})
	interceptor := g.UnaryServerInterceptor()

	var captured context.Context
	handler := func(ctx context.Context, _ any) (any, error) {
		captured = ctx
		return "response", nil
	}

	resp, err := interceptor(incoming("Bearer valid-token"), "request", &grpc.UnaryServerInfo{}, handler)
	require.NoError(t, err)
	assert.Equal(t, "response", resp)

	p, ok := PrincipalFromContext(captured)
	require.True(t, ok)
	assert.Equal(t, SourceExternal, p.Source)
}

func TestUnaryServerInterceptor_NoMetadata(t *testing.T) {
	t.Parallel()
	g := NewGateway(&stubVerifier{claims: externalClaims()}, nil, GatewayConfig{})

	called := false
	handler := func(ctx context.Context, _ any) (any, error) {
		called = true
		_, ok := PrincipalFromContext(ctx)
		assert.False(t, ok)
		return nil, nil
	}

	_, err := g.UnaryServerInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, handler)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestUnaryServerInterceptor_Rejected(t *testing.T) {
	t.Parallel()
	v := &stubVerifier{err: sserr.New(sserr.CodeTokenVerification, messageInvalidToken)}
	g := NewGateway(v, nil, GatewayConfig{})

	tests := []struct {
		header  string
		message string
	}{
		{"Bearer bad", "invalid token"},
		{"Basic abc", "invalid authorization header"},
	}
	for _, tt := range tests {
		handler := func(context.Context, any) (any, error) {
			t.Fatal("handler must not run")
			return nil, nil
		}
		_, err := g.UnaryServerInterceptor()(incoming(tt.header), nil, &grpc.UnaryServerInfo{}, handler)
		st, ok := status.FromError(err)
		require.True(t, ok)
		assert.Equal(t, codes.Unauthenticated, st.Code())
		assert.Equal(t, tt.message, st.Message())
	}
}

func TestStreamServerInterceptor(t *testing.T) {
	t.Parallel()
	g := NewGateway(&stubVerifier{claims: externalClaims()}, nil, GatewayConfig{})
	interceptor := g.StreamServerInterceptor()

	var subject string
	handler := func(_ any, ss grpc.ServerStream) error {
		if p, ok := PrincipalFromContext(ss.Context()); ok {
			subject = p.Subject
		}
		return nil
	}

	err := interceptor(nil, &mockServerStream{ctx: incoming("Bearer tok")}, &grpc.StreamServerInfo{}, handler)
	require.NoError(t, err)
	assert.Equal(t, externalClaims().Subject, subject)

	bad := NewGateway(&stubVerifier{}, nil, GatewayConfig{})
	err = bad.StreamServerInterceptor()(nil, &mockServerStream{ctx: incoming("nope")}, &grpc.StreamServerInfo{}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
