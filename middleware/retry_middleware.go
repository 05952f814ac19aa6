package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Retry re-issues a unary call that failed with codes.Unavailable up to maxRetries
// times, waiting baseDelay·2ⁿ between attempts. Any other outcome, including a
// well-formed rejection from the vehicle, is returned as is. With maxRetries 0 the
// interceptor is a no-op.
func Retry(maxRetries int, baseDelay time.Duration, log *zap.Logger) grpc.UnaryClientInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		for i := 0; i < maxRetries; i++ {
			if status.Code(err) != codes.Unavailable {
				return err
			}
			log.Debug("retrying call",
				zap.String("method", method),
				zap.Int("attempt", i+1),
				zap.Error(err))

			timer := time.NewTimer(baseDelay * time.Duration(1<<i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
			err = invoker(ctx, method, req, reply, cc, opts...)
		}
		return err
	}
}
