// Package telemetry is the facade of mavsdk.rpc.telemetry.TelemetryService.
//
// Every Subscribe accessor returns the same shared stream for the lifetime of the
// facade. Telemetry streams carry no result codes: they only end when the last
// listener leaves or the connection is torn down.
package telemetry

import (
	"context"

	"drone-rpc/client"
	"drone-rpc/plugins/plugin"
	"drone-rpc/result"
	"drone-rpc/transport"
)

// Service is the gRPC service name of the telemetry domain.
const Service = "mavsdk.rpc.telemetry.TelemetryService"

const (
	ResultUnknown int32 = iota
	ResultSuccess
	ResultNoSystem
	ResultConnectionError
	ResultBusy
	ResultCommandDenied
	ResultTimeout
	ResultUnsupported
)

// Table classifies telemetry results. NoSystem, ConnectionError and Timeout are
// infrastructure failures.
var Table = result.NewTable("telemetry", ResultSuccess, map[int32]string{
	ResultUnknown:         "UNKNOWN",
	ResultSuccess:         "SUCCESS",
	ResultNoSystem:        "NO_SYSTEM",
	ResultConnectionError: "CONNECTION_ERROR",
	ResultBusy:            "BUSY",
	ResultCommandDenied:   "COMMAND_DENIED",
	ResultTimeout:         "TIMEOUT",
	ResultUnsupported:     "UNSUPPORTED",
}, ResultNoSystem, ResultConnectionError, ResultTimeout)

// Telemetry exposes the vehicle's periodic state as shared subscriptions.
type Telemetry struct {
	plugin.Base
}

// New binds the telemetry facade to conn.
func New(conn client.Conn, opts ...client.Option) *Telemetry {
	return &Telemetry{Base: plugin.NewBase(conn, Service, Table, opts...)}
}

// Dial opens a channel of its own to ep. Close closes it.
func Dial(ctx context.Context, ep transport.Endpoint, opts ...transport.Option) (*Telemetry, error) {
	ch, err := plugin.Dial(ctx, ep, opts...)
	if err != nil {
		return nil, err
	}
	t := New(ch)
	t.Own(ch)
	return t, nil
}

func (t *Telemetry) Position() *client.Multicast[Position] {
	return plugin.Stream(&t.Base, "SubscribePosition", nil, client.StreamSpec[PositionResponse, Position]{
		Value: func(r *PositionResponse) (Position, bool) {
			if r.Position == nil {
				return Position{}, false
			}
			return *r.Position, true
		},
	})
}

func (t *Telemetry) Battery() *client.Multicast[Battery] {
	return plugin.Stream(&t.Base, "SubscribeBattery", nil, client.StreamSpec[BatteryResponse, Battery]{
		Value: func(r *BatteryResponse) (Battery, bool) {
			if r.Battery == nil {
				return Battery{}, false
			}
			return *r.Battery, true
		},
	})
}

func (t *Telemetry) Health() *client.Multicast[Health] {
	return plugin.Stream(&t.Base, "SubscribeHealth", nil, client.StreamSpec[HealthResponse, Health]{
		Value: func(r *HealthResponse) (Health, bool) {
			if r.Health == nil {
				return Health{}, false
			}
			return *r.Health, true
		},
	})
}

// Armed reports the arming state whenever it changes.
func (t *Telemetry) Armed() *client.Multicast[bool] {
	return plugin.Stream(&t.Base, "SubscribeArmed", nil, boolSpec)
}

// InAir reports whether the vehicle is airborne whenever it changes.
func (t *Telemetry) InAir() *client.Multicast[bool] {
	return plugin.Stream(&t.Base, "SubscribeInAir", nil, boolSpec)
}

func (t *Telemetry) FlightMode() *client.Multicast[FlightMode] {
	return plugin.Stream(&t.Base, "SubscribeFlightMode", nil, client.StreamSpec[FlightModeResponse, FlightMode]{
		Value: func(r *FlightModeResponse) (FlightMode, bool) { return r.FlightMode, true },
	})
}

// SetRatePosition sets the Position update rate in Hz.
func (t *Telemetry) SetRatePosition(ctx context.Context, rateHz float64) *client.Future[struct{}] {
	return plugin.Do(ctx, &t.Base, "SetRatePosition", &SetRateRequest{RateHz: rateHz})
}

// SetRateBattery sets the Battery update rate in Hz.
func (t *Telemetry) SetRateBattery(ctx context.Context, rateHz float64) *client.Future[struct{}] {
	return plugin.Do(ctx, &t.Base, "SetRateBattery", &SetRateRequest{RateHz: rateHz})
}

var boolSpec = client.StreamSpec[BoolResponse, bool]{
	Value: func(r *BoolResponse) (bool, bool) { return r.Value, true },
}
