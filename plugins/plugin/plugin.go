// Package plugin holds what every domain facade shares: the connection it calls
// through, its service name and the cache of its subscription streams.
package plugin

import (
	"context"
	"io"

	"drone-rpc/client"
	"drone-rpc/message"
	"drone-rpc/result"
	"drone-rpc/transport"
)

// Base is embedded by facades.
type Base struct {
	conn    client.Conn
	service string
	table   *result.Table
	opts    []client.Option
	streams client.StreamCache
	owned   io.Closer
}

// NewBase binds a facade for service to conn. table classifies the domain's result
// codes and may be nil for domains without one.
func NewBase(conn client.Conn, service string, table *result.Table, opts ...client.Option) Base {
	return Base{conn: conn, service: service, table: table, opts: opts}
}

// Dial opens a channel that the facade built on it will own and close.
func Dial(ctx context.Context, ep transport.Endpoint, opts ...transport.Option) (*transport.Channel, error) {
	return transport.Open(ctx, ep, opts...)
}

// Own makes Close also close c.
func (b *Base) Own(c io.Closer) { b.owned = c }

func (b *Base) Conn() client.Conn { return b.conn }

func (b *Base) Service() string { return b.service }

func (b *Base) Table() *result.Table { return b.table }

// Desc builds the call descriptor of method on this facade's service.
func (b *Base) Desc(method string, req any) message.Descriptor {
	return message.New(b.service, method, req)
}

// Streams returns the number of subscription streams created so far.
func (b *Base) Streams() int { return b.streams.Len() }

// Close closes an owned channel, then cancels the facade's subscriptions. Every
// attached listener receives client.ErrStreamClosed.
func (b *Base) Close() error {
	var err error
	if b.owned != nil {
		err = b.owned.Close()
	}
	b.streams.Close()
	return err
}

// Do issues a call whose response carries only a result.
func Do(ctx context.Context, b *Base, method string, req any) *client.Future[struct{}] {
	return client.Call(ctx, b.conn, b.Desc(method, req), client.UnarySpec[result.Response, struct{}]{
		Table:  b.table,
		Result: (*result.Response).GetResult,
	}, b.opts...)
}

// Unary issues a call with a domain-specific response.
func Unary[Resp any, T any](ctx context.Context, b *Base, method string, req any, spec client.UnarySpec[Resp, T]) *client.Future[T] {
	if spec.Table == nil {
		spec.Table = b.table
	}
	return client.Call(ctx, b.conn, b.Desc(method, req), spec, b.opts...)
}

// Stream returns the multicast stream for method, created on first use and shared
// afterwards. req must be the same on every call for a given method.
func Stream[Elem any, T any](b *Base, method string, req any, spec client.StreamSpec[Elem, T]) *client.Multicast[T] {
	if spec.Table == nil {
		spec.Table = b.table
	}
	return client.Cached(&b.streams, method, func() *client.Multicast[T] {
		return client.NewMulticast(b.conn, b.Desc(method, req), spec, b.opts...)
	})
}

// NewStream returns a multicast stream that is not cached, for calls whose request
// differs between invocations.
func NewStream[Elem any, T any](b *Base, method string, req any, spec client.StreamSpec[Elem, T]) *client.Multicast[T] {
	if spec.Table == nil {
		spec.Table = b.table
	}
	return client.NewMulticast(b.conn, b.Desc(method, req), spec, b.opts...)
}
