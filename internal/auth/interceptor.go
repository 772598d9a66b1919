// ABOUTME: gRPC interceptors applying the permission guard per registered method
// ABOUTME: Maps auth failures to codes.Unauthenticated and codes.PermissionDenied

package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// MethodPolicy declares, at registration time, the permissions each protected
// gRPC method requires. Methods without an entry are public.
type MethodPolicy map[string]RequiredPermissions

// UnaryInterceptor returns a gRPC unary interceptor that enforces policy.
func UnaryInterceptor(g *Guard, policy MethodPolicy) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		required, protected := policy[info.FullMethod]
		if !protected {
			return handler(ctx, req)
		}

		var (
			resp       any
			handlerErr error
			ran        bool
		)
		err := g.Enforce(ctx, tokenFromIncoming(ctx, g.binding), required, func(ctx context.Context) error {
			ran = true
			resp, handlerErr = handler(ctx, req)
			return handlerErr
		}, grpcAttrs(ctx, info.FullMethod)...)
		if ran {
			return resp, handlerErr
		}
		return nil, GRPCStatus(err)
	}
}

// StreamInterceptor returns a gRPC stream interceptor that enforces policy.
// The identity stays set for the lifetime of the stream handler.
func StreamInterceptor(g *Guard, policy MethodPolicy) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		required, protected := policy[info.FullMethod]
		if !protected {
			return handler(srv, ss)
		}

		var (
			handlerErr error
			ran        bool
		)
		ctx := ss.Context()
		err := g.Enforce(ctx, tokenFromIncoming(ctx, g.binding), required, func(ctx context.Context) error {
			ran = true
			handlerErr = handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
			return handlerErr
		}, grpcAttrs(ctx, info.FullMethod)...)
		if ran {
			return handlerErr
		}
		return GRPCStatus(err)
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

func tokenFromIncoming(ctx context.Context, b TokenBinding) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return b.FromMetadata(md)
}

// grpcAttrs returns the log attributes identifying a gRPC call.
func grpcAttrs(ctx context.Context, method string) []any {
	attrs := []any{"method", method}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, "peer_addr", p.Addr.String())
	}
	return attrs
}
