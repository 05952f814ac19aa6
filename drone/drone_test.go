package drone

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"drone-rpc/client"
	"drone-rpc/plugins/action"
	"drone-rpc/registry"
	"drone-rpc/result"
	"drone-rpc/server"
	"drone-rpc/sim"
	"drone-rpc/transport"
)

// serveSim runs a simulated vehicle on a loopback port.
func serveSim(t *testing.T, cfg sim.Config) (*sim.Vehicle, *server.Server, int) {
	t.Helper()
	v := sim.NewVehicle(cfg, nil)
	srv, err := sim.NewServer(v)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(lis)
	t.Cleanup(func() {
		v.Close()
		srv.Shutdown(time.Second)
	})
	return v, srv, lis.Addr().(*net.TCPAddr).Port
}

func newDrone(t *testing.T, opts ...Option) *Drone {
	log := zaptest.NewLogger(t, zaptest.Level(zapcore.WarnLevel))
	opts = append([]Option{
		WithLogger(log),
		WithTransportOptions(transport.WithDialTimeout(time.Second)),
	}, opts...)
	d := New(opts...)
	t.Cleanup(func() { d.Disconnect() })
	return d
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Arm against a reachable server answering success, a server answering
// COMMAND_DENIED "motors disabled" and a server that has gone away.
func TestArmOutcomes(t *testing.T) {
	v, srv, port := serveSim(t, sim.Config{})
	d := newDrone(t)
	ctx := testCtx(t)

	require.NoError(t, d.Connect(ctx, Remote{Host: "127.0.0.1", Port: port}))
	ep, err := d.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, port, ep.Port)

	_, err = d.Action().Arm(ctx).Await(ctx)
	require.NoError(t, err)
	_, err = d.Action().Disarm(ctx).Await(ctx)
	require.NoError(t, err)

	v.SetDenyArm(true)
	_, err = d.Action().Arm(ctx).Await(ctx)
	var de *result.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, action.ResultCommandDenied, de.Code)
	assert.Equal(t, "motors disabled", de.Message)

	require.NoError(t, srv.Shutdown(time.Second))
	_, err = d.Action().Arm(ctx).Await(ctx)
	require.Error(t, err)
	assert.Equal(t, result.KindInfrastructureFailure, result.KindOf(err))
}

func TestConnectUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	d := newDrone(t)
	err = d.Connect(testCtx(t), Remote{Host: "127.0.0.1", Port: port})
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.False(t, errors.Is(err, ErrConnectionStopped))
	assert.False(t, d.Connected())
	assert.Nil(t, d.Action())

	_, err = d.Endpoint()
	assert.ErrorIs(t, err, ErrNotConnected)
}

type fakeBackend struct {
	started bool
	port    int
	runs    int
	stops   int
}

func (b *fakeBackend) Run(string) (bool, int) {
	b.runs++
	return b.started, b.port
}

func (b *fakeBackend) Stop() { b.stops++ }

func TestConnectLocalNotStarted(t *testing.T) {
	b := &fakeBackend{}
	d := newDrone(t, WithBackend(b))
	err := d.Connect(testCtx(t), Local{VehicleAddress: "udp://:14540"})
	assert.ErrorIs(t, err, ErrConnectionStopped)
	assert.False(t, errors.Is(err, ErrConnectionFailed))
	assert.Equal(t, 0, b.stops)

	err = newDrone(t).Connect(testCtx(t), Local{VehicleAddress: "udp://:14540"})
	assert.ErrorIs(t, err, ErrConnectionStopped, "no backend configured")
}

func TestConnectLocalChannelFails(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	b := &fakeBackend{started: true, port: port}
	d := newDrone(t, WithBackend(b))
	err = d.Connect(testCtx(t), Local{VehicleAddress: "udp://:14540"})
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, 1, b.stops, "spawned backend is stopped again")
}

func TestConnectLocal(t *testing.T) {
	b := &sim.Backend{}
	reg := registry.NewMemoryRegistry()
	d := newDrone(t, WithBackend(b), WithRegistry(reg, nil), WithAdvertise("iris", 5))
	ctx := testCtx(t)

	require.NoError(t, d.Connect(ctx, Local{VehicleAddress: "udp://:14540"}))
	for _, f := range []any{d.Action(), d.Telemetry(), d.Mission(), d.Calibration(), d.Core()} {
		assert.NotNil(t, f)
	}
	assert.ErrorIs(t, d.Connect(ctx, Local{VehicleAddress: "udp://:14540"}), ErrAlreadyConnected)

	instances, err := reg.Discover(ctx, "iris")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	_, err = d.Action().Arm(ctx).Await(ctx)
	require.NoError(t, err)
	assert.True(t, b.Vehicle().Armed())

	require.NoError(t, d.Disconnect())
	require.NoError(t, d.Disconnect())
	assert.Nil(t, b.Vehicle(), "spawned server stopped")
	instances, err = reg.Discover(ctx, "iris")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, instances)
}

func TestConnectDiscovered(t *testing.T) {
	_, _, port := serveSim(t, sim.Config{})
	reg := registry.NewMemoryRegistry()
	ctx := testCtx(t)
	require.NoError(t, reg.Register(ctx, "iris", registry.ServiceInstance{Addr: net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), Weight: 1}, 5))

	d := newDrone(t, WithRegistry(reg, nil))
	err := d.Connect(ctx, Discovered{Vehicle: "typhoon"})
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	require.NoError(t, d.Connect(ctx, Discovered{Vehicle: "iris"}))

	alt, err := d.Action().GetTakeoffAltitude(ctx).Await(ctx)
	require.NoError(t, err)
	assert.InDelta(t, sim.DefaultTakeoffAlt, alt, 1e-6)
}

func TestConnectDiscoveredFollowsRegistry(t *testing.T) {
	_, _, port := serveSim(t, sim.Config{})
	reg := registry.NewMemoryRegistry()
	ctx := testCtx(t)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	require.NoError(t, reg.Register(ctx, "iris", registry.ServiceInstance{Addr: addr, Weight: 1}, 5))

	d := newDrone(t, WithRegistry(reg, nil))
	assert.Nil(t, d.Instances())
	require.NoError(t, d.Connect(ctx, Discovered{Vehicle: "iris"}))
	require.Len(t, d.Instances(), 1)

	spare := registry.ServiceInstance{Addr: "127.0.0.1:1", Weight: 1}
	require.NoError(t, reg.Register(ctx, "iris", spare, 5))
	assert.Eventually(t, func() bool { return len(d.Instances()) == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, reg.Deregister(ctx, "iris", addr))
	assert.Eventually(t, func() bool {
		instances := d.Instances()
		return len(instances) == 1 && instances[0].Addr == spare.Addr
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, d.Disconnect())
	assert.Nil(t, d.Instances())
}

func TestDisconnectEndsSubscriptions(t *testing.T) {
	_, _, port := serveSim(t, sim.Config{TelemetryRate: 100})
	d := newDrone(t)
	ctx := testCtx(t)
	require.NoError(t, d.Connect(ctx, Remote{Host: "127.0.0.1", Port: port}))

	got := make(chan bool, 1)
	l := d.Telemetry().Armed().Subscribe(func(armed bool) {
		select {
		case got <- armed:
		default:
		}
	}, nil)
	select {
	case armed := <-got:
		assert.False(t, armed)
	case <-ctx.Done():
		t.Fatal("no telemetry received")
	}

	ch := d.Channel()
	assert.Equal(t, 1, ch.OpenCalls())
	l.Close()
	assert.Eventually(t, func() bool { return ch.OpenCalls() == 0 }, time.Second, 10*time.Millisecond)

	ended := make(chan error, 1)
	d.Telemetry().Armed().Subscribe(nil, func(err error) { ended <- err })

	iterCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	positions := d.Telemetry().Position().All(iterCtx)
	iterDone := make(chan error, 1)
	first := make(chan struct{})
	go func() {
		var last error
		var once sync.Once
		for _, err := range positions {
			once.Do(func() { close(first) })
			if err != nil {
				last = err
			}
		}
		iterDone <- last
	}()
	select {
	case <-first:
	case <-ctx.Done():
		t.Fatal("no position received")
	}

	require.NoError(t, d.Disconnect())
	assert.Equal(t, 0, ch.OpenCalls())
	assert.Nil(t, d.Telemetry())

	select {
	case err := <-ended:
		assert.ErrorIs(t, err, client.ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("listener not ended by Disconnect")
	}
	select {
	case err := <-iterDone:
		assert.ErrorIs(t, err, client.ErrStreamClosed)
		assert.NoError(t, iterCtx.Err())
	case <-time.After(time.Second):
		t.Fatal("iterator not ended by Disconnect")
	}
}
