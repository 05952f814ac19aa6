// Package transport implements the Channel: one long-lived gRPC connection to a
// vehicle server, shared by every facade of a drone.
//
// Every call gets a sequence id and an entry in the pending map holding its cancel
// function. Closing the channel cancels everything still pending, so no caller is
// left waiting on a dead connection:
//
//	action.Arm ─────────Invoke(seq=1)──┐
//	telemetry.Position ─NewStream(seq=2)┼──▶ one *grpc.ClientConn (HTTP/2) ──▶ server
//	mission.Progress ───NewStream(seq=3)┘
//
//	Close: closed=true → cancel pending[1..3] → close conn → drain worker pool
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"drone-rpc/client"
	"drone-rpc/codec"
	"drone-rpc/message"
	"drone-rpc/metrics"
)

// ErrChannelClosed is returned by every call issued on, or in flight at the time of,
// a closed channel.
var ErrChannelClosed = errors.New("transport: channel closed")

// ConnectionError means Open could not reach the endpoint.
type ConnectionError struct {
	Endpoint Endpoint
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Channel multiplexes unary and streaming calls over one connection. It implements
// client.Conn.
type Channel struct {
	endpoint Endpoint
	conn     *grpc.ClientConn
	codec    codec.Codec
	pool     *WorkerPool
	log      *zap.Logger
	metrics  *metrics.Metrics

	seq       atomic.Uint64
	mu        sync.Mutex
	pending   map[uint64]context.CancelFunc
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ client.Conn = (*Channel)(nil)

// Open connects to ep and waits until the connection is ready or fails.
func Open(ctx context.Context, ep Endpoint, opts ...Option) (*Channel, error) {
	ep = ep.WithDefaults()
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := ep.Validate(); err != nil {
		return nil, &ConnectionError{Endpoint: ep, Err: err}
	}

	cdc := codec.GetCodec(o.codec)
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(cdc)),
		grpc.WithChainUnaryInterceptor(o.unary...),
		grpc.WithChainStreamInterceptor(o.stream...),
	}
	if o.keepalive > 0 {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    o.keepalive,
			Timeout: o.keepalive / 3,
		}))
	}
	if o.dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(o.dialer))
	}
	dialOpts = append(dialOpts, o.dialOpts...)

	log := o.logger.Named("channel").With(zap.String("endpoint", ep.String()))

	// passthrough hands the address to the dialer as is
	conn, err := grpc.NewClient("passthrough:///"+ep.Address(), dialOpts...)
	if err != nil {
		return nil, &ConnectionError{Endpoint: ep, Err: err}
	}

	if err := waitReady(ctx, conn, o.dialTimeout); err != nil {
		conn.Close()
		log.Debug("connect failed", zap.Error(err))
		return nil, &ConnectionError{Endpoint: ep, Err: err}
	}

	log.Info("channel open", zap.Stringer("codec", o.codec), zap.Int("workers", o.workers))
	return &Channel{
		endpoint: ep,
		conn:     conn,
		codec:    cdc,
		pool:     NewWorkerPool(o.workers, log, o.metrics),
		log:      log,
		metrics:  o.metrics,
		pending:  make(map[uint64]context.CancelFunc),
		done:     make(chan struct{}),
	}, nil
}

// waitReady drives the connection out of idle and waits for READY. A transient
// failure is reported at once instead of waiting for the backoff to retry it.
func waitReady(ctx context.Context, conn *grpc.ClientConn, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure:
			return errors.New("connection refused or unreachable")
		case connectivity.Shutdown:
			return errors.New("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("not ready after %s: %w", timeout, ctx.Err())
		}
	}
}

// Endpoint returns the address the channel was opened to.
func (c *Channel) Endpoint() Endpoint { return c.endpoint }

func (c *Channel) Codec() codec.CodecType { return c.codec.Type() }

// Done is closed when Close starts.
func (c *Channel) Done() <-chan struct{} { return c.done }

// OpenCalls returns the number of unary and streaming calls in flight.
func (c *Channel) OpenCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// track registers a call in the pending map. release removes it and cancels its
// context; it is safe to call more than once.
func (c *Channel) track(ctx context.Context, desc message.Descriptor, typ string) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrChannelClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	seq := c.seq.Add(1)
	c.pending[seq] = cancel
	c.metrics.CallOpened(desc.String(), typ)

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.pending, seq)
			c.mu.Unlock()
			cancel()
			c.metrics.CallClosed()
		})
	}
	return ctx, release, nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Invoke performs one unary call.
func (c *Channel) Invoke(ctx context.Context, desc message.Descriptor, resp any) error {
	ctx, release, err := c.track(ctx, desc, "unary")
	if err != nil {
		return err
	}
	defer release()

	err = c.conn.Invoke(ctx, desc.FullMethod(), desc.Request, resp)
	if err != nil && c.isClosed() {
		return ErrChannelClosed
	}
	return err
}

// NewStream opens a server-streaming call, sends the request and half-closes.
func (c *Channel) NewStream(ctx context.Context, desc message.Descriptor) (client.Stream, error) {
	ctx, release, err := c.track(ctx, desc, "stream")
	if err != nil {
		return nil, err
	}

	sd := &grpc.StreamDesc{StreamName: desc.Method, ServerStreams: true}
	cs, err := c.conn.NewStream(ctx, sd, desc.FullMethod())
	if err == nil {
		err = cs.SendMsg(desc.Request)
	}
	if err == nil {
		err = cs.CloseSend()
	}
	if err != nil {
		release()
		if c.isClosed() {
			return nil, ErrChannelClosed
		}
		return nil, err
	}
	return &stream{cs: cs, release: release, ch: c}, nil
}

// Dispatch runs fn on the channel's worker pool.
func (c *Channel) Dispatch(key string, fn func()) {
	c.pool.Dispatch(key, fn)
}

// Close cancels every pending call, closes the connection and stops the worker
// pool. Later calls return ErrChannelClosed. Close is idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := c.pending
		c.pending = make(map[uint64]context.CancelFunc)
		close(c.done)
		c.mu.Unlock()

		c.closeAllPending(pending)
		c.closeErr = multierr.Combine(c.conn.Close(), c.pool.Close())
		c.log.Info("channel closed", zap.Int("cancelled", len(pending)))
	})
	return c.closeErr
}

func (c *Channel) closeAllPending(pending map[uint64]context.CancelFunc) {
	for _, cancel := range pending {
		cancel()
	}
}

type stream struct {
	cs      grpc.ClientStream
	release func()
	ch      *Channel
}

func (s *stream) Recv(m any) error {
	err := s.cs.RecvMsg(m)
	if err != nil && err != io.EOF && s.ch.isClosed() {
		return ErrChannelClosed
	}
	return err
}

func (s *stream) Close() error {
	s.release()
	return nil
}
