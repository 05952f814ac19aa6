package plugin_test

import (
	"context"
	"encoding"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drone-rpc/client"
	"drone-rpc/message"
	"drone-rpc/plugins/action"
	"drone-rpc/plugins/calibration"
	"drone-rpc/plugins/mission"
	"drone-rpc/plugins/telemetry"
	"drone-rpc/result"
)

// wireConn answers calls with canned messages, passing them through the binary
// wire encoding on the way.
type wireConn struct {
	mu      sync.Mutex
	replies map[string]encoding.BinaryMarshaler
	streams map[string][]encoding.BinaryMarshaler
	calls   []message.Descriptor
	done    chan struct{}
}

func newWireConn() *wireConn {
	return &wireConn{
		replies: make(map[string]encoding.BinaryMarshaler),
		streams: make(map[string][]encoding.BinaryMarshaler),
		done:    make(chan struct{}),
	}
}

func copyWire(from encoding.BinaryMarshaler, to any) error {
	data, err := from.MarshalBinary()
	if err != nil {
		return err
	}
	return to.(encoding.BinaryUnmarshaler).UnmarshalBinary(data)
}

func (c *wireConn) Invoke(_ context.Context, desc message.Descriptor, resp any) error {
	c.mu.Lock()
	c.calls = append(c.calls, desc)
	r := c.replies[desc.Method]
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	return copyWire(r, resp)
}

func (c *wireConn) NewStream(ctx context.Context, desc message.Descriptor) (client.Stream, error) {
	c.mu.Lock()
	c.calls = append(c.calls, desc)
	elems := c.streams[desc.Method]
	c.mu.Unlock()
	return &wireStream{ctx: ctx, elems: elems}, nil
}

func (c *wireConn) Dispatch(_ string, fn func()) { fn() }

func (c *wireConn) Done() <-chan struct{} { return c.done }

func (c *wireConn) last() message.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

// wireStream yields its elements, then blocks until cancelled.
type wireStream struct {
	ctx   context.Context
	elems []encoding.BinaryMarshaler
}

func (s *wireStream) Recv(m any) error {
	if len(s.elems) == 0 {
		<-s.ctx.Done()
		return io.ErrUnexpectedEOF
	}
	e := s.elems[0]
	s.elems = s.elems[1:]
	return copyWire(e, m)
}

func (s *wireStream) Close() error { return nil }

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestUnaryFacade(t *testing.T) {
	conn := newWireConn()
	a := action.New(conn)
	ctx := testCtx(t)

	conn.replies["Arm"] = result.NewResponse(action.ResultCommandDenied, "motors disabled")
	_, err := a.Arm(ctx).Await(ctx)
	var de *result.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "action", de.Domain)
	assert.Equal(t, "/mavsdk.rpc.action.ActionService/Arm", conn.last().FullMethod())

	conn.replies["Arm"] = result.NewResponse(action.ResultTimeout, "")
	_, err = a.Arm(ctx).Await(ctx)
	assert.True(t, result.IsInfrastructure(err))

	conn.replies["GetMaximumSpeed"] = &action.FloatResponse{
		Result: &result.Result{Code: action.ResultSuccess},
		Value:  12.5,
	}
	speed, err := a.GetMaximumSpeed(ctx).Await(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, speed, 1e-6)

	_, err = a.GotoLocation(ctx, 47.1, 8.5, 500, 90).Await(ctx)
	require.NoError(t, err, "responses without a result count as success")
	req, ok := conn.last().Request.(*action.GotoLocationRequest)
	require.True(t, ok)
	assert.Equal(t, 47.1, req.LatitudeDeg)
}

func TestStreamsAreCached(t *testing.T) {
	conn := newWireConn()
	tel := telemetry.New(conn)

	assert.Same(t, tel.Position(), tel.Position())
	tel.Battery()
	assert.Equal(t, 2, tel.Streams())

	m := mission.New(conn)
	plan := mission.Plan{Items: []mission.Item{{LatitudeDeg: 1}}}
	assert.NotSame(t, m.UploadWithProgress(plan), m.UploadWithProgress(plan))
	assert.Equal(t, 0, m.Streams(), "uploads are not cached")
	require.NoError(t, tel.Close())
}

func TestProgressStream(t *testing.T) {
	conn := newWireConn()
	conn.streams["SubscribeCalibrateGyro"] = []encoding.BinaryMarshaler{
		&calibration.ProgressResponse{
			Result:   &result.Result{Code: calibration.ResultNext},
			Progress: &calibration.ProgressData{HasProgress: true, Progress: 0.5},
		},
		&calibration.ProgressResponse{
			Result:   &result.Result{Code: calibration.ResultNext},
			Progress: &calibration.ProgressData{HasStatusText: true, StatusText: "rotate vehicle"},
		},
		&calibration.ProgressResponse{Result: &result.Result{Code: calibration.ResultSuccess}},
	}
	c := calibration.New(conn)

	var got []calibration.ProgressData
	for p, err := range c.CalibrateGyro().All(testCtx(t)) {
		require.NoError(t, err)
		got = append(got, p)
	}
	require.Len(t, got, 2)
	assert.InDelta(t, 0.5, got[0].Progress, 1e-6)
	assert.Equal(t, "rotate vehicle", got[1].StatusText)
}

func TestProgressStreamFails(t *testing.T) {
	conn := newWireConn()
	conn.streams["UploadMissionWithProgress"] = []encoding.BinaryMarshaler{
		&mission.UploadProgressResponse{
			Result:   &result.Result{Code: mission.ResultNext},
			Progress: &mission.ProgressData{Progress: 0.5},
		},
		&mission.UploadProgressResponse{
			Result: &result.Result{Code: mission.ResultTooManyMissionItems, Message: "too many"},
		},
	}
	m := mission.New(conn)

	var (
		values []float32
		last   error
	)
	for v, err := range m.UploadWithProgress(mission.Plan{}).All(testCtx(t)) {
		if err != nil {
			last = err
			continue
		}
		values = append(values, v)
	}
	assert.Equal(t, []float32{0.5}, values)
	var de *result.DomainError
	require.ErrorAs(t, last, &de)
	assert.Equal(t, "TOO_MANY_MISSION_ITEMS", de.Name)
}
