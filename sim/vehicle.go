// Package sim is a simulated vehicle served over gRPC. It answers the same services
// as a real vehicle server closely enough to drive the client library end to end,
// and exposes fault knobs so tests can provoke domain and infrastructure failures.
package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"drone-rpc/plugins/action"
	"drone-rpc/plugins/calibration"
	"drone-rpc/plugins/core"
	"drone-rpc/plugins/mission"
	"drone-rpc/plugins/telemetry"
	"drone-rpc/server"
)

const (
	DefaultTelemetryRate = 10.0
	DefaultTakeoffAlt    = 2.5
	DefaultMaxSpeed      = 12.0
	MaxMissionItems      = 1000
)

// Faults are the failures a Vehicle injects.
type Faults struct {
	// DenyArm makes Arm answer COMMAND_DENIED "motors disabled".
	DenyArm bool
	// DropTelemetry is the number of times telemetry streams are cut with
	// codes.Unavailable. Each cut happens after DropAfter elements of a stream.
	DropTelemetry int
	DropAfter     int
}

// Config sets the simulated vehicle's rates, home position and injected faults.
type Config struct {
	TelemetryRate float64 // Hz
	Home          telemetry.Position
	Faults
}

func (c Config) withDefaults() Config {
	if c.TelemetryRate <= 0 {
		c.TelemetryRate = DefaultTelemetryRate
	}
	if c.DropAfter <= 0 {
		c.DropAfter = 1
	}
	if c.Home == (telemetry.Position{}) {
		c.Home = telemetry.Position{LatitudeDeg: 47.397742, LongitudeDeg: 8.545594, AbsoluteAltitudeM: 488}
	}
	return c
}

// Vehicle is the simulated state shared by all services.
type Vehicle struct {
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	cfg        Config
	drops      int
	armed      bool
	inAir      bool
	mode       telemetry.FlightMode
	pos        telemetry.Position
	battery    telemetry.Battery
	takeoffAlt float32
	maxSpeed   float32
	rates      map[string]float64
	plan       mission.Plan
	current    int32
	running    bool
	flight     uint64
	changed    chan struct{}

	mavlinkTimeout float64

	uploadGen atomic.Uint64
	calibGen  atomic.Uint64
	sent      atomic.Uint64
}

// NewVehicle returns a disarmed vehicle on the ground at cfg.Home.
func NewVehicle(cfg Config, log *zap.Logger) *Vehicle {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	v := &Vehicle{
		log:     log.Named("sim"),
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		drops:   cfg.DropTelemetry,
		changed: make(chan struct{}),
		rates:   make(map[string]float64),
	}
	v.reset()
	return v
}

func (v *Vehicle) reset() {
	v.armed, v.inAir = false, false
	v.mode = telemetry.FlightModeReady
	v.pos = v.cfg.Home
	v.battery = telemetry.Battery{VoltageV: 16.8, RemainingPercent: 100}
	v.takeoffAlt = DefaultTakeoffAlt
	v.maxSpeed = DefaultMaxSpeed
	v.running = false
	v.current = 0
}

// Register adds every simulated service to srv.
func (v *Vehicle) Register(srv *server.Server) error {
	for name, rcvr := range map[string]any{
		action.Service:      &actionService{v},
		telemetry.Service:   &telemetryService{v},
		mission.Service:     &missionService{v},
		calibration.Service: &calibrationService{v},
		core.Service:        &coreService{v},
	} {
		if err := srv.RegisterName(name, rcvr); err != nil {
			return err
		}
	}
	return nil
}

// Close stops background activity such as a running mission.
func (v *Vehicle) Close() {
	v.cancel()
	v.wg.Wait()
}

// SetDenyArm toggles the DenyArm fault.
func (v *Vehicle) SetDenyArm(deny bool) {
	v.mu.Lock()
	v.cfg.DenyArm = deny
	v.mu.Unlock()
}

// DropTelemetry schedules n more telemetry stream cuts.
func (v *Vehicle) DropTelemetry(n int) {
	v.mu.Lock()
	v.drops += n
	v.mu.Unlock()
}

func (v *Vehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

// Sent is the number of stream elements sent so far.
func (v *Vehicle) Sent() uint64 { return v.sent.Load() }

// notify wakes everything waiting on a state change. Caller holds mu.
func (v *Vehicle) notify() {
	close(v.changed)
	v.changed = make(chan struct{})
}

func (v *Vehicle) watch() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.changed
}

func (v *Vehicle) takeDrop() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.drops <= 0 {
		return false
	}
	v.drops--
	return true
}

func (v *Vehicle) interval(stream string) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	rate := v.cfg.TelemetryRate
	if r, ok := v.rates[stream]; ok && r > 0 {
		rate = r
	}
	return time.Duration(float64(time.Second) / rate)
}

// periodic sends next() at the stream's rate until the client leaves, the vehicle
// closes or a scheduled drop cuts the stream.
func (v *Vehicle) periodic(st *server.Stream, name string, next func() any) error {
	log := v.log.With(zap.String("stream", name))
	t := time.NewTicker(v.interval(name))
	defer t.Stop()

	sent := 0
	for {
		if err := st.Send(next()); err != nil {
			return err
		}
		v.sent.Add(1)
		sent++
		if sent >= v.cfg.DropAfter && v.takeDrop() {
			log.Debug("dropping stream", zap.Int("after", sent))
			return status.Error(codes.Unavailable, "sim: telemetry link lost")
		}
		select {
		case <-st.Context().Done():
			return st.Context().Err()
		case <-v.ctx.Done():
			return status.Error(codes.Unavailable, "sim: vehicle shut down")
		case <-t.C:
		}
	}
}

// onChange sends next() now and after every state change while it reports ok.
func (v *Vehicle) onChange(st *server.Stream, next func() (any, bool)) error {
	for {
		ch := v.watch()
		if m, ok := next(); ok {
			if err := st.Send(m); err != nil {
				return err
			}
			v.sent.Add(1)
		}
		select {
		case <-st.Context().Done():
			return st.Context().Err()
		case <-v.ctx.Done():
			return status.Error(codes.Unavailable, "sim: vehicle shut down")
		case <-ch:
		}
	}
}
