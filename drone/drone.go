// Package drone is the entry point of the library. A Drone attaches to one vehicle
// server, either spawned locally, reached at a known address or discovered through
// the registry, and exposes every domain facade bound to that one channel.
//
//	Connect(Local{...})      → backend.Run → localhost:<port> ┐
//	Connect(Remote{...})     → host:port                      ├→ transport.Open → facades
//	Connect(Discovered{...}) → registry.Discover → balancer    ┘
package drone

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"drone-rpc/backend"
	"drone-rpc/client"
	"drone-rpc/loadbalance"
	"drone-rpc/plugins/action"
	"drone-rpc/plugins/calibration"
	"drone-rpc/plugins/core"
	"drone-rpc/plugins/mission"
	"drone-rpc/plugins/telemetry"
	"drone-rpc/registry"
	"drone-rpc/transport"
)

var (
	// ErrConnectionFailed means the channel to the vehicle server could not be opened.
	ErrConnectionFailed = errors.New("drone: connection failed")
	// ErrConnectionStopped means a local vehicle server could not be started.
	ErrConnectionStopped = errors.New("drone: connection stopped")
	ErrNotConnected      = errors.New("drone: not connected")
	ErrAlreadyConnected  = errors.New("drone: already connected")
)

// Target is one of Local, Remote or Discovered.
type Target interface {
	fmt.Stringer
	target()
}

// Local spawns a vehicle server through the configured backend and connects to it.
type Local struct {
	VehicleAddress string
}

// Remote connects to a running vehicle server. Zero fields take the defaults.
type Remote struct {
	Host string
	Port int
}

// Discovered looks the vehicle up in the configured registry.
type Discovered struct {
	Vehicle string
}

func (Local) target()      {}
func (Remote) target()     {}
func (Discovered) target() {}

func (t Local) String() string { return "local " + t.VehicleAddress }
func (t Remote) String() string {
	return "remote " + transport.Endpoint{Host: t.Host, Port: t.Port}.WithDefaults().Address()
}
func (t Discovered) String() string { return "discovered " + t.Vehicle }

type options struct {
	backend   backend.Backend
	registry  registry.Registry
	balancer  loadbalance.Balancer
	advertise string
	ttl       int64
	transport []transport.Option
	client    []client.Option
	logger    *zap.Logger
}

// Option configures a Drone.
type Option func(*options)

// WithBackend sets the backend used by Local targets.
func WithBackend(b backend.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithRegistry sets the registry used by Discovered targets. A nil balancer picks
// round robin.
func WithRegistry(r registry.Registry, b loadbalance.Balancer) Option {
	return func(o *options) {
		o.registry = r
		if b != nil {
			o.balancer = b
		}
	}
}

// WithAdvertise registers a locally spawned server in the registry under vehicle
// for as long as the drone stays connected.
func WithAdvertise(vehicle string, ttl int64) Option {
	return func(o *options) {
		o.advertise = vehicle
		o.ttl = ttl
	}
}

// WithTransportOptions applies to every channel the drone opens.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

// WithClientOptions applies to every facade the drone wires.
func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) { o.client = append(o.client, opts...) }
}

// WithLogger sets the logger passed down to the drone's own events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Drone is safe for concurrent use. Facade accessors return nil while disconnected.
type Drone struct {
	opts options
	log  *zap.Logger

	mu         sync.RWMutex
	ch         *transport.Channel
	spawned    bool
	advertised string
	peers      *peers
	unwatch    context.CancelFunc

	action      *action.Action
	telemetry   *telemetry.Telemetry
	mission     *mission.Mission
	calibration *calibration.Calibration
	core        *core.Core
}

// New returns a disconnected drone.
func New(opts ...Option) *Drone {
	o := options{
		balancer: &loadbalance.RoundRobinBalancer{},
		ttl:      10,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Drone{opts: o, log: o.logger.Named("drone")}
}

// Connect attaches to target. Every facade is ready when it returns nil.
//
// A local server that does not start yields ErrConnectionStopped; a channel that
// cannot be opened yields ErrConnectionFailed, and a server spawned for the attempt
// is stopped again.
func (d *Drone) Connect(ctx context.Context, target Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch != nil {
		return ErrAlreadyConnected
	}
	log := d.log.With(zap.Stringer("target", target))

	var (
		ep      transport.Endpoint
		spawned bool
		picked  *registry.ServiceInstance
		seen    []registry.ServiceInstance
		err     error
	)
	switch t := target.(type) {
	case Local:
		if d.opts.backend == nil {
			return fmt.Errorf("%w: no backend configured", ErrConnectionStopped)
		}
		started, port := d.opts.backend.Run(t.VehicleAddress)
		if !started {
			return fmt.Errorf("%w: backend did not start for %s", ErrConnectionStopped, t.VehicleAddress)
		}
		spawned = true
		ep = transport.Endpoint{Host: transport.DefaultHost, Port: port}
	case Remote:
		ep = transport.Endpoint{Host: t.Host, Port: t.Port}.WithDefaults()
	case Discovered:
		picked, seen, err = d.discover(ctx, t.Vehicle)
		if err == nil {
			ep, err = transport.ParseEndpoint(picked.Addr)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
	default:
		return fmt.Errorf("drone: unsupported target %T", target)
	}

	ch, err := transport.Open(ctx, ep, d.opts.transport...)
	if err != nil {
		if spawned {
			d.opts.backend.Stop()
		}
		log.Warn("connect failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if spawned && d.opts.advertise != "" && d.opts.registry != nil {
		inst := registry.ServiceInstance{Addr: ep.Address(), Weight: 1}
		if err := d.opts.registry.Register(ctx, d.opts.advertise, inst, d.opts.ttl); err != nil {
			log.Warn("advertise local server", zap.Error(err))
		} else {
			d.advertised = inst.Addr
		}
	}

	d.ch, d.spawned = ch, spawned
	if t, ok := target.(Discovered); ok {
		d.watchLocked(t.Vehicle, picked.Addr, seen)
	}
	d.action = action.New(ch, d.opts.client...)
	d.telemetry = telemetry.New(ch, d.opts.client...)
	d.mission = mission.New(ch, d.opts.client...)
	d.calibration = calibration.New(ch, d.opts.client...)
	d.core = core.New(ch, d.opts.client...)
	log.Info("connected", zap.Stringer("endpoint", ep))
	return nil
}

func (d *Drone) discover(ctx context.Context, vehicle string) (*registry.ServiceInstance, []registry.ServiceInstance, error) {
	if d.opts.registry == nil {
		return nil, nil, errors.New("no registry configured")
	}
	instances, err := d.opts.registry.Discover(ctx, vehicle)
	if err != nil {
		return nil, nil, fmt.Errorf("discover %s: %w", vehicle, err)
	}
	inst, err := d.opts.balancer.Pick(instances)
	if err != nil {
		return nil, nil, fmt.Errorf("discover %s: %w", vehicle, err)
	}
	d.log.Debug("instance picked",
		zap.String("vehicle", vehicle),
		zap.String("addr", inst.Addr),
		zap.String("balancer", d.opts.balancer.Name()))
	return inst, instances, nil
}

// peers holds the registry entries of a discovered vehicle as last reported by the
// registry watch.
type peers struct {
	mu        sync.Mutex
	instances []registry.ServiceInstance
}

func (p *peers) set(list []registry.ServiceInstance) {
	p.mu.Lock()
	p.instances = slices.Clone(list)
	p.mu.Unlock()
}

func (p *peers) get() []registry.ServiceInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.instances)
}

// watchLocked follows the registry entries of vehicle until Disconnect and warns
// once the connected instance is no longer advertised.
func (d *Drone) watchLocked(vehicle, addr string, initial []registry.ServiceInstance) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &peers{}
	p.set(initial)
	d.peers, d.unwatch = p, cancel

	updates := d.opts.registry.Watch(ctx, vehicle)
	log := d.log.With(zap.String("vehicle", vehicle), zap.String("addr", addr))
	go func() {
		for list := range updates {
			p.set(list)
			advertised := slices.ContainsFunc(list, func(inst registry.ServiceInstance) bool {
				return inst.Addr == addr
			})
			if !advertised {
				log.Warn("connected instance no longer advertised", zap.Int("instances", len(list)))
				continue
			}
			log.Debug("instances changed", zap.Int("instances", len(list)))
		}
	}()
}

// Disconnect closes the channel, ends every subscription with client.ErrStreamClosed
// and stops a server this drone spawned. Disconnecting a disconnected drone is a no-op.
func (d *Drone) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch == nil {
		return nil
	}

	if d.unwatch != nil {
		d.unwatch()
	}
	err := d.ch.Close()
	for _, f := range []interface{ Close() error }{d.action, d.telemetry, d.mission, d.calibration, d.core} {
		err = multierr.Append(err, f.Close())
	}

	if d.advertised != "" {
		ctx, cancel := context.WithTimeout(context.Background(), transport.DefaultDialTimeout)
		err = multierr.Append(err, d.opts.registry.Deregister(ctx, d.opts.advertise, d.advertised))
		cancel()
	}
	if d.spawned {
		d.opts.backend.Stop()
	}

	d.log.Info("disconnected", zap.Stringer("endpoint", d.ch.Endpoint()))
	d.ch, d.spawned, d.advertised = nil, false, ""
	d.peers, d.unwatch = nil, nil
	d.action, d.telemetry, d.mission, d.calibration, d.core = nil, nil, nil, nil, nil
	return err
}

// Connected reports whether Connect succeeded and Disconnect has not run since.
func (d *Drone) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ch != nil
}

// Endpoint returns the address of the connected server.
func (d *Drone) Endpoint() (transport.Endpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.ch == nil {
		return transport.Endpoint{}, ErrNotConnected
	}
	return d.ch.Endpoint(), nil
}

// Instances returns the registry entries of the vehicle this drone discovered, kept
// current by a registry watch. It is nil unless connected to a Discovered target.
func (d *Drone) Instances() []registry.ServiceInstance {
	d.mu.RLock()
	p := d.peers
	d.mu.RUnlock()
	if p == nil {
		return nil
	}
	return p.get()
}

// Channel returns the connected channel, or nil.
func (d *Drone) Channel() *transport.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ch
}

func (d *Drone) Action() *action.Action {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.action
}

func (d *Drone) Telemetry() *telemetry.Telemetry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.telemetry
}

func (d *Drone) Mission() *mission.Mission {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mission
}

func (d *Drone) Calibration() *calibration.Calibration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.calibration
}

func (d *Drone) Core() *core.Core {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.core
}
