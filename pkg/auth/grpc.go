package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// UnaryServerInterceptor applies the gateway to unary calls, reading the
// token from the "authorization" metadata key. Calls without the key
// proceed unauthenticated; rejected tokens fail with
// codes.Unauthenticated.
func (g *Gateway) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := g.authenticateGRPC(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [Gateway.UnaryServerInterceptor].
func (g *Gateway) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := g.authenticateGRPC(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func (g *Gateway) authenticateGRPC(ctx context.Context) (context.Context, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(HeaderAuthorization); len(vals) > 0 {
			header = vals[0]
		}
	}

	p, err := g.Authenticate(ctx, header)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, sserr.FromError(err).Message)
	}
	if p != nil {
		ctx = ContextWithPrincipal(ctx, p)
	}
	return ctx, nil
}

// wrappedServerStream overrides Context so handlers see the principal.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
