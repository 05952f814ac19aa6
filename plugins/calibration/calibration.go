// Package calibration is the facade of mavsdk.rpc.calibration.CalibrationService.
//
// Each Calibrate method starts a new calibration on the vehicle. The returned
// stream emits progress reports while the result is NEXT, completes on SUCCESS and
// fails with a DomainError for any other code. Detaching the last listener cancels
// the call; Cancel additionally asks the vehicle to abort.
package calibration

import (
	"context"

	"drone-rpc/client"
	"drone-rpc/plugins/plugin"
	"drone-rpc/result"
	"drone-rpc/transport"
)

// Service is the gRPC service name of the calibration domain.
const Service = "mavsdk.rpc.calibration.CalibrationService"

// Result is the {code, message} pair carried in calibration progress.
type Result = result.Result

const (
	ResultUnknown int32 = iota
	ResultSuccess
	ResultNext
	ResultFailed
	ResultNoSystem
	ResultConnectionError
	ResultBusy
	ResultCommandDenied
	ResultTimeout
	ResultCancelled
	ResultFailedArmed
	ResultUnsupported
)

// Table classifies calibration results. NEXT marks a progress element.
var Table = result.NewTable("calibration", ResultSuccess, map[int32]string{
	ResultUnknown:         "UNKNOWN",
	ResultSuccess:         "SUCCESS",
	ResultNext:            "NEXT",
	ResultFailed:          "FAILED",
	ResultNoSystem:        "NO_SYSTEM",
	ResultConnectionError: "CONNECTION_ERROR",
	ResultBusy:            "BUSY",
	ResultCommandDenied:   "COMMAND_DENIED",
	ResultTimeout:         "TIMEOUT",
	ResultCancelled:       "CANCELLED",
	ResultFailedArmed:     "FAILED_ARMED",
	ResultUnsupported:     "UNSUPPORTED",
}, ResultNoSystem, ResultConnectionError, ResultTimeout)

// Calibration runs sensor calibrations and reports their progress.
type Calibration struct {
	plugin.Base
}

// New binds the calibration facade to conn.
func New(conn client.Conn, opts ...client.Option) *Calibration {
	return &Calibration{Base: plugin.NewBase(conn, Service, Table, opts...)}
}

// Dial opens a channel of its own to ep. Close closes it.
func Dial(ctx context.Context, ep transport.Endpoint, opts ...transport.Option) (*Calibration, error) {
	ch, err := plugin.Dial(ctx, ep, opts...)
	if err != nil {
		return nil, err
	}
	c := New(ch)
	c.Own(ch)
	return c, nil
}

// CalibrateGyro starts a gyroscope calibration. Each call is a separate run.
func (c *Calibration) CalibrateGyro() *client.Multicast[ProgressData] {
	return plugin.NewStream(&c.Base, "SubscribeCalibrateGyro", nil, progressSpec)
}

// CalibrateAccelerometer starts an accelerometer calibration.
func (c *Calibration) CalibrateAccelerometer() *client.Multicast[ProgressData] {
	return plugin.NewStream(&c.Base, "SubscribeCalibrateAccelerometer", nil, progressSpec)
}

// CalibrateMagnetometer starts a magnetometer calibration.
func (c *Calibration) CalibrateMagnetometer() *client.Multicast[ProgressData] {
	return plugin.NewStream(&c.Base, "SubscribeCalibrateMagnetometer", nil, progressSpec)
}

// Cancel aborts the running calibration, which then fails with CANCELLED.
func (c *Calibration) Cancel(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &c.Base, "Cancel", nil)
}

var progressSpec = client.StreamSpec[ProgressResponse, ProgressData]{
	Result: func(r *ProgressResponse) *result.Result {
		if r.Result == nil || r.Result.Code == ResultNext {
			return nil
		}
		return r.Result
	},
	Value: func(r *ProgressResponse) (ProgressData, bool) {
		if r.Progress == nil {
			return ProgressData{}, false
		}
		return *r.Progress, true
	},
}
