package middleware

import (
	"context"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RateLimit rejects unary calls beyond r per second (token bucket with the given
// burst) with codes.ResourceExhausted, without sending them.
func RateLimit(r float64, burst int) grpc.UnaryClientInterceptor {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if !limiter.Allow() {
			return status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s", method)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// ServerRateLimit is RateLimit for a server: calls beyond the limit are refused
// before reaching the handler.
func ServerRateLimit(r float64, burst int) grpc.StreamServerInterceptor {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !limiter.Allow() {
			return status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s", info.FullMethod)
		}
		return handler(srv, ss)
	}
}
