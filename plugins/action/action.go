// Package action is the facade of mavsdk.rpc.action.ActionService: arming, takeoff,
// landing and simple navigation commands.
package action

import (
	"context"

	"drone-rpc/client"
	"drone-rpc/plugins/plugin"
	"drone-rpc/result"
	"drone-rpc/transport"
)

// Service is the gRPC service name of the action domain.
const Service = "mavsdk.rpc.action.ActionService"

// Result is the {code, message} pair carried in action responses.
type Result = result.Result

// Result codes of the action domain.
const (
	ResultUnknown int32 = iota
	ResultSuccess
	ResultNoSystem
	ResultConnectionError
	ResultBusy
	ResultCommandDenied
	ResultCommandDeniedLandedStateUnknown
	ResultCommandDeniedNotLanded
	ResultTimeout
	ResultVtolTransitionSupportUnknown
	ResultNoVtolTransitionSupport
	ResultParameterError
	ResultUnsupported
	ResultFailed
	ResultInvalidArgument
)

// Table classifies action results. NoSystem, ConnectionError and Timeout mean the
// command never reached the vehicle or its answer was lost.
var Table = result.NewTable("action", ResultSuccess, map[int32]string{
	ResultUnknown:                         "UNKNOWN",
	ResultSuccess:                         "SUCCESS",
	ResultNoSystem:                        "NO_SYSTEM",
	ResultConnectionError:                 "CONNECTION_ERROR",
	ResultBusy:                            "BUSY",
	ResultCommandDenied:                   "COMMAND_DENIED",
	ResultCommandDeniedLandedStateUnknown: "COMMAND_DENIED_LANDED_STATE_UNKNOWN",
	ResultCommandDeniedNotLanded:          "COMMAND_DENIED_NOT_LANDED",
	ResultTimeout:                         "TIMEOUT",
	ResultVtolTransitionSupportUnknown:    "VTOL_TRANSITION_SUPPORT_UNKNOWN",
	ResultNoVtolTransitionSupport:         "NO_VTOL_TRANSITION_SUPPORT",
	ResultParameterError:                  "PARAMETER_ERROR",
	ResultUnsupported:                     "UNSUPPORTED",
	ResultFailed:                          "FAILED",
	ResultInvalidArgument:                 "INVALID_ARGUMENT",
}, ResultNoSystem, ResultConnectionError, ResultTimeout)

// Action sends one-shot commands to the vehicle. Every method returns a Future.
type Action struct {
	plugin.Base
}

// New binds the action facade to conn.
func New(conn client.Conn, opts ...client.Option) *Action {
	return &Action{Base: plugin.NewBase(conn, Service, Table, opts...)}
}

// Dial opens a channel of its own to ep. Close closes it.
func Dial(ctx context.Context, ep transport.Endpoint, opts ...transport.Option) (*Action, error) {
	ch, err := plugin.Dial(ctx, ep, opts...)
	if err != nil {
		return nil, err
	}
	a := New(ch)
	a.Own(ch)
	return a, nil
}

// Arm arms the motors. A vehicle that refuses answers COMMAND_DENIED.
func (a *Action) Arm(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "Arm", nil)
}

// Disarm disarms the motors. It is denied while the vehicle is in the air.
func (a *Action) Disarm(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "Disarm", nil)
}

// Takeoff climbs to the takeoff altitude. The vehicle must be armed.
func (a *Action) Takeoff(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "Takeoff", nil)
}

// Land descends and lands at the current position.
func (a *Action) Land(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "Land", nil)
}

// Reboot restarts the autopilot. It is denied while armed.
func (a *Action) Reboot(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "Reboot", nil)
}

// Kill stops the motors immediately, in the air too.
func (a *Action) Kill(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "Kill", nil)
}

// ReturnToLaunch flies back to the home position and lands.
func (a *Action) ReturnToLaunch(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "ReturnToLaunch", nil)
}

// Hold stops in place and keeps the current position.
func (a *Action) Hold(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "Hold", nil)
}

// GotoLocation flies to a global position at an absolute altitude in meters.
func (a *Action) GotoLocation(ctx context.Context, latDeg, lonDeg float64, absAltM, yawDeg float32) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "GotoLocation", &GotoLocationRequest{
		LatitudeDeg:       latDeg,
		LongitudeDeg:      lonDeg,
		AbsoluteAltitudeM: absAltM,
		YawDeg:            yawDeg,
	})
}

// SetTakeoffAltitude sets the altitude above ground used by Takeoff.
func (a *Action) SetTakeoffAltitude(ctx context.Context, altitudeM float32) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "SetTakeoffAltitude", &FloatRequest{Value: altitudeM})
}

// GetTakeoffAltitude returns the altitude above ground used by Takeoff.
func (a *Action) GetTakeoffAltitude(ctx context.Context) *client.Future[float32] {
	return plugin.Unary(ctx, &a.Base, "GetTakeoffAltitude", nil, floatSpec)
}

// SetMaximumSpeed limits horizontal speed in m/s.
func (a *Action) SetMaximumSpeed(ctx context.Context, speedMS float32) *client.Future[struct{}] {
	return plugin.Do(ctx, &a.Base, "SetMaximumSpeed", &FloatRequest{Value: speedMS})
}

// GetMaximumSpeed returns the horizontal speed limit in m/s.
func (a *Action) GetMaximumSpeed(ctx context.Context) *client.Future[float32] {
	return plugin.Unary(ctx, &a.Base, "GetMaximumSpeed", nil, floatSpec)
}

var floatSpec = client.UnarySpec[FloatResponse, float32]{
	Result: func(r *FloatResponse) *result.Result { return r.Result },
	Value:  func(r *FloatResponse) float32 { return r.Value },
}
