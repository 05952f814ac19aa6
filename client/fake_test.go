package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"drone-rpc/message"
	"drone-rpc/result"
)

const (
	codeUnknown int32 = iota
	codeSuccess
	codeNoSystem
	codeConnectionError
	codeBusy
	codeCommandDenied
)

var testTable = result.NewTable("test", codeSuccess, map[int32]string{
	codeUnknown:         "UNKNOWN",
	codeSuccess:         "SUCCESS",
	codeNoSystem:        "NO_SYSTEM",
	codeConnectionError: "CONNECTION_ERROR",
	codeBusy:            "BUSY",
	codeCommandDenied:   "COMMAND_DENIED",
}, codeNoSystem, codeConnectionError)

var testDesc = message.New("test.TestService", "SubscribeValue", nil)

var errUnavailable = status.Error(codes.Unavailable, "connection reset")

type testElem struct {
	Value int
	Res   *result.Result
}

var testSpec = StreamSpec[testElem, int]{
	Table:  testTable,
	Result: func(e *testElem) *result.Result { return e.Res },
	Value:  func(e *testElem) (int, bool) { return e.Value, true },
}

type fakeFrame struct {
	elem testElem
	err  error
}

type fakeStream struct {
	ctx    context.Context
	conn   *fakeConn
	frames chan fakeFrame
	once   sync.Once
}

func (s *fakeStream) send(v int) { s.frames <- fakeFrame{elem: testElem{Value: v}} }

func (s *fakeStream) result(code int32, msg string) {
	s.frames <- fakeFrame{elem: testElem{Res: &result.Result{Code: code, Message: msg}}}
}

func (s *fakeStream) fail(err error) { s.frames <- fakeFrame{err: err} }

func (s *fakeStream) Recv(m any) error {
	select {
	case f := <-s.frames:
		if f.err != nil {
			return f.err
		}
		*m.(*testElem) = f.elem
		return nil
	case <-s.ctx.Done():
		return status.FromContextError(s.ctx.Err()).Err()
	case <-s.conn.done:
		return status.Error(codes.Canceled, "grpc: the client connection is closing")
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		s.conn.mu.Lock()
		s.conn.live--
		s.conn.mu.Unlock()
	})
	return nil
}

// fakeConn is an in-memory Conn. Dispatched functions run in order on one goroutine.
type fakeConn struct {
	mu      sync.Mutex
	opens   int
	live    int
	streams []*fakeStream

	// onOpen runs for every NewStream with the 1-based attempt number. A non-nil
	// error fails the open.
	onOpen func(n int, s *fakeStream) error
	invoke func(ctx context.Context, desc message.Descriptor, resp any) error

	tasks    chan func()
	done     chan struct{}
	stop     chan struct{}
	doneOnce sync.Once
}

func newFakeConn(t *testing.T) *fakeConn {
	c := &fakeConn{
		tasks: make(chan func(), 4096),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go func() {
		for {
			select {
			case fn := <-c.tasks:
				fn()
			case <-c.stop:
				return
			}
		}
	}()
	t.Cleanup(func() {
		c.teardown()
		close(c.stop)
	})
	return c
}

func (c *fakeConn) Invoke(ctx context.Context, desc message.Descriptor, resp any) error {
	if c.invoke == nil {
		return errors.New("no unary handler")
	}
	return c.invoke(ctx, desc, resp)
}

func (c *fakeConn) NewStream(ctx context.Context, desc message.Descriptor) (Stream, error) {
	select {
	case <-c.done:
		return nil, errors.New("channel closed")
	default:
	}

	c.mu.Lock()
	c.opens++
	n := c.opens
	c.mu.Unlock()

	s := &fakeStream{ctx: ctx, conn: c, frames: make(chan fakeFrame, 64)}
	if c.onOpen != nil {
		if err := c.onOpen(n, s); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	c.live++
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeConn) Dispatch(_ string, fn func()) { c.tasks <- fn }

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) teardown() { c.doneOnce.Do(func() { close(c.done) }) }

func (c *fakeConn) counts() (opens, live int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens, c.live
}

func (c *fakeConn) stream(i int) *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.streams) {
		return nil
	}
	return c.streams[i]
}

// recorder collects listener callbacks.
type recorder struct {
	mu     sync.Mutex
	values []int
	ended  bool
	err    error
	ends   int
}

func (r *recorder) next(v int) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder) done(err error) {
	r.mu.Lock()
	r.ended = true
	r.err = err
	r.ends++
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...), r.ended, r.err
}
