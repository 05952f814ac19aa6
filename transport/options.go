package transport

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"drone-rpc/codec"
	"drone-rpc/metrics"
)

// Connection defaults used when an Option leaves them unset.
const (
	DefaultDialTimeout = 5 * time.Second
	// DefaultKeepalive matches the minimum ping interval a stock gRPC server accepts.
	DefaultKeepalive = 5 * time.Minute
)

type options struct {
	codec       codec.CodecType
	workers     int
	dialTimeout time.Duration
	keepalive   time.Duration
	unary       []grpc.UnaryClientInterceptor
	stream      []grpc.StreamClientInterceptor
	dialer      func(context.Context, string) (net.Conn, error)
	dialOpts    []grpc.DialOption
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func defaultOptions() options {
	return options{
		codec:       codec.CodecTypeBinary,
		workers:     DefaultWorkers,
		dialTimeout: DefaultDialTimeout,
		keepalive:   DefaultKeepalive,
		logger:      zap.NewNop(),
	}
}

// Option configures a Channel opened with Open.
type Option func(*options)

// WithCodec forces the codec for every call on the channel. Binary is the default.
func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = t }
}

// WithWorkers sets the size of the callback worker pool.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithDialTimeout bounds how long Open waits for the connection to become ready.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithKeepalive sets the ping interval on an idle connection. Zero disables pings.
func WithKeepalive(d time.Duration) Option {
	return func(o *options) { o.keepalive = d }
}

// WithUnaryInterceptors chains client interceptors around every unary call, in order.
func WithUnaryInterceptors(i ...grpc.UnaryClientInterceptor) Option {
	return func(o *options) { o.unary = append(o.unary, i...) }
}

// WithStreamInterceptors chains client interceptors around every streaming call.
func WithStreamInterceptors(i ...grpc.StreamClientInterceptor) Option {
	return func(o *options) { o.stream = append(o.stream, i...) }
}

// WithContextDialer replaces the TCP dialer, e.g. with a bufconn listener in tests.
func WithContextDialer(d func(context.Context, string) (net.Conn, error)) Option {
	return func(o *options) { o.dialer = d }
}

// WithDialOptions appends raw gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// WithLogger sets the channel and worker pool logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics counts open calls and dispatch panics. Nil disables it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
