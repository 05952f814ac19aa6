package sim

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/test/bufconn"

	"drone-rpc/plugins/action"
	"drone-rpc/plugins/calibration"
	"drone-rpc/plugins/core"
	"drone-rpc/plugins/mission"
	"drone-rpc/plugins/telemetry"
	"drone-rpc/result"
	"drone-rpc/transport"
)

func start(t *testing.T, cfg Config) (*Vehicle, *transport.Channel) {
	t.Helper()
	log := zaptest.NewLogger(t, zaptest.Level(zapcore.InfoLevel))
	v := NewVehicle(cfg, zap.NewNop())
	srv, err := NewServer(v)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(func() {
		v.Close()
		srv.Shutdown(time.Second)
	})

	ch, err := transport.Open(context.Background(), transport.Endpoint{Host: "bufnet", Port: 1},
		transport.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		transport.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return v, ch
}

func awaitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestArm(t *testing.T) {
	v, ch := start(t, Config{})
	a := action.New(ch)
	ctx := awaitCtx(t)

	_, err := a.Arm(ctx).Await(ctx)
	require.NoError(t, err)
	assert.True(t, v.Armed())

	_, err = a.Disarm(ctx).Await(ctx)
	require.NoError(t, err)

	v.SetDenyArm(true)
	_, err = a.Arm(ctx).Await(ctx)
	var de *result.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, action.ResultCommandDenied, de.Code)
	assert.Equal(t, "COMMAND_DENIED", de.Name)
	assert.Equal(t, "motors disabled", de.Message)
	assert.Equal(t, result.KindDomainFailure, result.KindOf(err))
	assert.False(t, v.Armed())
}

func TestTakeoffRequiresArm(t *testing.T) {
	_, ch := start(t, Config{})
	a := action.New(ch)
	ctx := awaitCtx(t)

	_, err := a.Takeoff(ctx).Await(ctx)
	assert.True(t, result.IsDomain(err))

	_, err = a.Arm(ctx).Await(ctx)
	require.NoError(t, err)
	_, err = a.Takeoff(ctx).Await(ctx)
	require.NoError(t, err)

	_, err = a.Disarm(ctx).Await(ctx)
	var de *result.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, action.ResultCommandDeniedNotLanded, de.Code)

	_, err = a.Land(ctx).Await(ctx)
	require.NoError(t, err)
}

func TestTakeoffAltitude(t *testing.T) {
	_, ch := start(t, Config{})
	a := action.New(ch)
	ctx := awaitCtx(t)

	alt, err := a.GetTakeoffAltitude(ctx).Await(ctx)
	require.NoError(t, err)
	assert.InDelta(t, DefaultTakeoffAlt, alt, 1e-6)

	_, err = a.SetTakeoffAltitude(ctx, 10).Await(ctx)
	require.NoError(t, err)
	alt, err = a.GetTakeoffAltitude(ctx).Await(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10, alt, 1e-6)

	_, err = a.SetTakeoffAltitude(ctx, -1).Await(ctx)
	var de *result.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, action.ResultInvalidArgument, de.Code)
}

func TestTelemetrySurvivesDrops(t *testing.T) {
	v, ch := start(t, Config{TelemetryRate: 100, Faults: Faults{DropTelemetry: 3}})
	tel := telemetry.New(ch)
	ctx := awaitCtx(t)

	n := 0
	for p, err := range tel.Position().All(ctx) {
		require.NoError(t, err)
		assert.NotZero(t, p.LatitudeDeg)
		if n++; n == 6 {
			break
		}
	}
	assert.Equal(t, 6, n)
	assert.GreaterOrEqual(t, v.Sent(), uint64(6))
	assert.Eventually(t, func() bool { return ch.OpenCalls() == 0 }, time.Second, 10*time.Millisecond)
}

func TestTelemetryStreamsShared(t *testing.T) {
	_, ch := start(t, Config{TelemetryRate: 100})
	tel := telemetry.New(ch)
	assert.Same(t, tel.Armed(), tel.Armed())
	assert.NotSame(t, tel.Armed(), tel.InAir())

	ctx := awaitCtx(t)
	for mode, err := range tel.FlightMode().All(ctx) {
		require.NoError(t, err)
		assert.Equal(t, telemetry.FlightModeReady, mode)
		break
	}
	require.NoError(t, tel.Close())
}

func TestMissionUpload(t *testing.T) {
	_, ch := start(t, Config{TelemetryRate: 200})
	m := mission.New(ch)
	a := action.New(ch)
	ctx := awaitCtx(t)

	_, err := m.Start(ctx).Await(ctx)
	var de *result.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, mission.ResultNoMissionAvailable, de.Code)

	plan := mission.Plan{Items: []mission.Item{
		{LatitudeDeg: 47.3980, LongitudeDeg: 8.5456, RelativeAltitudeM: 10},
		{LatitudeDeg: 47.3981, LongitudeDeg: 8.5457, RelativeAltitudeM: 10},
		{LatitudeDeg: 47.3982, LongitudeDeg: 8.5458, RelativeAltitudeM: 10},
	}}
	var progress []float32
	for p, err := range m.UploadWithProgress(plan).All(ctx) {
		require.NoError(t, err)
		progress = append(progress, p)
	}
	require.Len(t, progress, 3)
	assert.InDelta(t, 1.0, progress[2], 1e-6)

	finished, err := m.IsFinished(ctx).Await(ctx)
	require.NoError(t, err)
	assert.False(t, finished)

	_, err = a.Arm(ctx).Await(ctx)
	require.NoError(t, err)
	_, err = m.Start(ctx).Await(ctx)
	require.NoError(t, err)

	var last mission.Progress
	for p, err := range m.Progress().All(ctx) {
		require.NoError(t, err)
		last = p
		if p.Current == p.Total {
			break
		}
	}
	assert.Equal(t, mission.Progress{Current: 3, Total: 3}, last)

	finished, err = m.IsFinished(ctx).Await(ctx)
	require.NoError(t, err)
	assert.True(t, finished)

	_, err = m.SetCurrentItem(ctx, 7).Await(ctx)
	assert.True(t, result.IsDomain(err))
}

func TestCalibration(t *testing.T) {
	_, ch := start(t, Config{TelemetryRate: 200})
	c := calibration.New(ch)
	ctx := awaitCtx(t)

	var steps []calibration.ProgressData
	for p, err := range c.CalibrateGyro().All(ctx) {
		require.NoError(t, err)
		steps = append(steps, p)
	}
	require.Len(t, steps, calibrationSteps)
	assert.True(t, steps[0].HasStatusText)
	assert.Equal(t, "gyro step 4/4", steps[3].StatusText)
}

func TestCalibrationArmed(t *testing.T) {
	_, ch := start(t, Config{})
	c := calibration.New(ch)
	ctx := awaitCtx(t)

	_, err := action.New(ch).Arm(ctx).Await(ctx)
	require.NoError(t, err)

	var got error
	for _, err := range c.CalibrateAccelerometer().All(ctx) {
		got = err
	}
	var de *result.DomainError
	require.ErrorAs(t, got, &de)
	assert.Equal(t, calibration.ResultFailedArmed, de.Code)
	assert.Equal(t, "calibration", de.Domain)
}

func TestCoreConnectionState(t *testing.T) {
	_, ch := start(t, Config{})
	c := core.New(ch)
	ctx := awaitCtx(t)

	for connected, err := range c.ConnectionState().All(ctx) {
		require.NoError(t, err)
		assert.True(t, connected)
		break
	}
	_, err := c.SetMavlinkTimeout(ctx, 0.5).Await(ctx)
	require.NoError(t, err)

	_, err = c.SetMavlinkTimeout(ctx, -1).Await(ctx)
	assert.True(t, result.IsInfrastructure(err))
}

func TestBackend(t *testing.T) {
	b := &Backend{Logger: zap.NewNop()}
	started, port := b.Run("udp://:14540")
	require.True(t, started)
	require.NotZero(t, port)
	defer b.Stop()

	again, _ := b.Run("udp://:14540")
	assert.False(t, again)

	ctx := awaitCtx(t)
	ch, err := transport.Open(ctx, transport.Endpoint{Host: "127.0.0.1", Port: port})
	require.NoError(t, err)
	defer ch.Close()

	_, err = action.New(ch).Arm(ctx).Await(ctx)
	require.NoError(t, err)
	assert.True(t, b.Vehicle().Armed())

	b.Stop()
	assert.Nil(t, b.Vehicle())
	_, err = action.New(ch).Arm(ctx).Await(ctx)
	assert.True(t, result.IsInfrastructure(err))
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}
