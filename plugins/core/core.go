// Package core is the facade of mavsdk.rpc.core.CoreService: the link state between
// the server and the vehicle.
package core

import (
	"context"

	"drone-rpc/client"
	"drone-rpc/message"
	"drone-rpc/plugins/plugin"
	"drone-rpc/protocol"
	"drone-rpc/transport"
)

// Service is the gRPC service name of the core domain.
const Service = "mavsdk.rpc.core.CoreService"

// ConnectionStateResponse reports whether the server sees a vehicle. Field 1 is
// reserved for a vehicle uuid the server no longer sends.
type ConnectionStateResponse struct {
	IsConnected bool `json:"is_connected"`
}

func (m *ConnectionStateResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Bool(2, m.IsConnected)
	return e.Bytes()
}

func (m *ConnectionStateResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(2) {
			m.IsConnected = f.Bool()
		}
		return nil
	})
}

type SetMavlinkTimeoutRequest struct {
	TimeoutS float64 `json:"timeout_s"`
}

func (m *SetMavlinkTimeoutRequest) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Double(1, m.TimeoutS)
	return e.Bytes()
}

func (m *SetMavlinkTimeoutRequest) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.TimeoutS = f.Double()
		}
		return nil
	})
}

// Core has no result table: its calls either succeed or fail in transport.
type Core struct {
	plugin.Base
}

// New binds the core facade to conn.
func New(conn client.Conn, opts ...client.Option) *Core {
	return &Core{Base: plugin.NewBase(conn, Service, nil, opts...)}
}

// Dial opens a channel of its own to ep. Close closes it.
func Dial(ctx context.Context, ep transport.Endpoint, opts ...transport.Option) (*Core, error) {
	ch, err := plugin.Dial(ctx, ep, opts...)
	if err != nil {
		return nil, err
	}
	c := New(ch)
	c.Own(ch)
	return c, nil
}

func (c *Core) ConnectionState() *client.Multicast[bool] {
	return plugin.Stream(&c.Base, "SubscribeConnectionState", nil, client.StreamSpec[ConnectionStateResponse, bool]{
		Value: func(r *ConnectionStateResponse) (bool, bool) { return r.IsConnected, true },
	})
}

// SetMavlinkTimeout sets how long the server waits for a vehicle answer, in seconds.
func (c *Core) SetMavlinkTimeout(ctx context.Context, timeoutS float64) *client.Future[struct{}] {
	return plugin.Unary(ctx, &c.Base, "SetMavlinkTimeout", &SetMavlinkTimeoutRequest{TimeoutS: timeoutS},
		client.UnarySpec[message.Empty, struct{}]{})
}
