// Package client turns remote calls into local asynchronous primitives.
//
// Unary calls become a Future that resolves exactly once. Server-streaming calls
// become a Multicast stream: one live subscription fanned out to any number of
// listeners, reopened on infrastructure failures and terminated on domain failures.
//
//	facade ──Call(desc)──────▶ Future[T] ──Await──▶ (T, error)
//	facade ──NewMulticast────▶ Multicast[T] ──Subscribe──▶ Listener ... Listener
//	                                │
//	                         subscription (Pending ⇄ Active → Completed|Failed|Cancelled)
//	                                │
//	                             Conn.NewStream
package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"drone-rpc/message"
	"drone-rpc/metrics"
)

// ErrStreamClosed is delivered to stream listeners when the underlying connection is
// torn down.
var ErrStreamClosed = errors.New("client: stream closed")

// Conn is the transport the adapters run on. transport.Channel implements it.
type Conn interface {
	// Invoke performs one unary call, decoding the response into resp.
	Invoke(ctx context.Context, desc message.Descriptor, resp any) error
	// NewStream opens a server-streaming call and sends desc.Request.
	NewStream(ctx context.Context, desc message.Descriptor) (Stream, error)
	// Dispatch runs fn on the delivery worker pool. Functions with the same
	// non-empty key run in submission order.
	Dispatch(key string, fn func())
	// Done is closed once the connection has been torn down.
	Done() <-chan struct{}
}

// Stream is one open server-streaming call.
type Stream interface {
	// Recv decodes the next element into m. io.EOF marks a clean end.
	Recv(m any) error
	// Close releases the call. It is safe to call more than once.
	Close() error
}

// Reopen backoff defaults for subscriptions dropped by infrastructure failures.
const (
	DefaultRetryBase = 100 * time.Millisecond
	DefaultRetryMax  = 5 * time.Second
)

type options struct {
	logger    *zap.Logger
	metrics   *metrics.Metrics
	retryBase time.Duration
	retryMax  time.Duration
}

// Option configures calls and subscriptions built by this package.
type Option func(*options)

// WithLogger sets the logger for call and subscription lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records outcomes, reopens and listener counts. Nil disables it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRetryBackoff sets the delay before the second consecutive reopen attempt and
// the cap for later ones. The first reopen is always immediate.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(o *options) {
		if base > 0 {
			o.retryBase = base
		}
		if max >= base && max > 0 {
			o.retryMax = max
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    zap.NewNop(),
		retryBase: DefaultRetryBase,
		retryMax:  DefaultRetryMax,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retryMax < o.retryBase {
		o.retryMax = o.retryBase
	}
	return o
}
