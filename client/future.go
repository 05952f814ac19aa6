package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"drone-rpc/message"
	"drone-rpc/result"
)

// UnarySpec describes how a domain decodes one unary response of type Resp into a
// value of type T.
type UnarySpec[Resp any, T any] struct {
	// Table classifies the embedded result. A nil Table means the response carries
	// no result and every received response is a success.
	Table *result.Table
	// Result extracts the embedded result. Nil return means success.
	Result func(*Resp) *result.Result
	// Value extracts the payload. Nil means T's zero value.
	Value func(*Resp) T
}

// Future is the single outcome of a unary call.
type Future[T any] struct {
	op   string
	conn Conn
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	outcome   result.Outcome[T]
	callbacks []func(result.Outcome[T])
	cancel    context.CancelFunc
}

func newFuture[T any](op string, conn Conn, cancel context.CancelFunc) *Future[T] {
	return &Future[T]{
		op:     op,
		conn:   conn,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Call issues exactly one unary call on conn and returns without waiting for it.
// There is no retry at this layer.
func Call[Resp any, T any](ctx context.Context, conn Conn, desc message.Descriptor, spec UnarySpec[Resp, T], opts ...Option) *Future[T] {
	o := buildOptions(opts)
	op := desc.String()

	callCtx, cancel := context.WithCancel(ctx)
	f := newFuture[T](op, conn, cancel)

	go func() {
		defer cancel()

		resp := new(Resp)
		err := conn.Invoke(callCtx, desc, resp)

		var out result.Outcome[T]
		switch {
		case err != nil:
			out = result.Failure[T](result.FromTransport(op, err))
		default:
			out = spec.decode(resp)
		}

		o.metrics.Outcome(op, out.Kind().String())
		if out.Err != nil {
			o.logger.Debug("unary call failed",
				zap.String("method", op),
				zap.Stringer("kind", out.Kind()),
				zap.Error(out.Err))
		}
		f.resolve(out)
	}()

	return f
}

func (s UnarySpec[Resp, T]) decode(resp *Resp) result.Outcome[T] {
	if s.Table != nil && s.Result != nil {
		if err := s.Table.ClassifyResult(s.Result(resp)); err != nil {
			return result.Failure[T](err)
		}
	}
	var v T
	if s.Value != nil {
		v = s.Value(resp)
	}
	return result.Success(v)
}

// resolve stores the outcome. Only the first call has an effect; it reports whether
// this call was the one that resolved the future.
func (f *Future[T]) resolve(out result.Outcome[T]) bool {
	resolved := false
	f.once.Do(func() {
		f.mu.Lock()
		f.outcome = out
		callbacks := f.callbacks
		f.callbacks = nil
		close(f.done)
		f.mu.Unlock()

		for _, cb := range callbacks {
			f.deliver(cb, out)
		}
		resolved = true
	})
	return resolved
}

func (f *Future[T]) deliver(cb func(result.Outcome[T]), out result.Outcome[T]) {
	f.conn.Dispatch(f.op, func() { cb(out) })
}

// Done is closed once the outcome is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Outcome returns the outcome if the future has resolved.
func (f *Future[T]) Outcome() (result.Outcome[T], bool) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.outcome, true
	default:
		return result.Outcome[T]{}, false
	}
}

// Await blocks until the outcome is available or ctx is done. Giving up on ctx
// cancels the underlying call and resolves the future with an infrastructure
// failure.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		f.cancel()
		f.resolve(result.Failure[T](result.FromTransport(f.op, ctx.Err())))
	}
	out, _ := f.Outcome()
	return out.Unwrap()
}

// Cancel abandons the call. The request may still have reached the server.
func (f *Future[T]) Cancel() {
	f.cancel()
}

// OnComplete registers cb to run on the worker pool once the outcome is available.
func (f *Future[T]) OnComplete(cb func(result.Outcome[T])) {
	f.mu.Lock()
	select {
	case <-f.done:
		out := f.outcome
		f.mu.Unlock()
		f.deliver(cb, out)
		return
	default:
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}
