package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Logging logs every unary call with its duration and gRPC status code.
func Logging(log *zap.Logger) grpc.UnaryClientInterceptor {
	log = log.Named("rpc")
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		fields := []zap.Field{
			zap.String("method", method),
			zap.Duration("duration", time.Since(start)),
			zap.Stringer("code", status.Code(err)),
		}
		if err != nil {
			log.Debug("call failed", append(fields, zap.Error(err))...)
			return err
		}
		log.Debug("call", fields...)
		return nil
	}
}

// StreamLogging logs the opening of every streaming call.
func StreamLogging(log *zap.Logger) grpc.StreamClientInterceptor {
	log = log.Named("rpc")
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			log.Debug("open stream failed", zap.String("method", method), zap.Error(err))
			return nil, err
		}
		log.Debug("stream opened", zap.String("method", method))
		return cs, nil
	}
}

// ServerLogging logs every call handled by a server with its duration.
func ServerLogging(log *zap.Logger) grpc.StreamServerInterceptor {
	log = log.Named("rpc")
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		log.Debug("handled",
			zap.String("method", info.FullMethod),
			zap.Bool("stream", info.IsServerStream),
			zap.Duration("duration", time.Since(start)),
			zap.Stringer("code", status.Code(err)))
		return err
	}
}
