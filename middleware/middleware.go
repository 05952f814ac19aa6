// Package middleware provides gRPC interceptors for the vehicle channel and the
// simulated server.
//
// Client interceptors are chained in the order given to transport.WithUnaryInterceptors:
// Chain(A, B) runs A.before → B.before → call → B.after → A.after. A typical client
// chain is Logging → RateLimit → Retry → Timeout, so each retry attempt gets its
// own deadline.
package middleware

import (
	"context"

	"google.golang.org/grpc"
)

// ChainUnary composes unary client interceptors into one.
func ChainUnary(interceptors ...grpc.UnaryClientInterceptor) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		next := invoker
		for i := len(interceptors) - 1; i >= 0; i-- {
			ic, inner := interceptors[i], next
			next = func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
				return ic(ctx, method, req, reply, cc, inner, opts...)
			}
		}
		return next(ctx, method, req, reply, cc, opts...)
	}
}
