package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"drone-rpc/message"
	"drone-rpc/result"
)

// State is the lifecycle state of a subscription.
type State int

const (
	// StateIdle means no subscription is live.
	StateIdle State = iota
	StatePending
	StateActive
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// frame is one decoded stream element. A non-nil res means the element carried a
// result code; otherwise value is delivered when ok is set.
type frame[T any] struct {
	value T
	ok    bool
	res   *result.Result
}

// subscription owns at most one underlying streaming call at a time.
type subscription[T any] struct {
	id    string
	conn  Conn
	desc  message.Descriptor
	table *result.Table
	recv  func(Stream) (frame[T], error)
	opts  options
	log   *zap.Logger

	emit func(*subscription[T], T)
	end  func(*subscription[T], State, error)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	opens int
}

func (s *subscription[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves to next unless the subscription already reached a terminal state.
func (s *subscription[T]) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = next
	return true
}

// Cancel ends the subscription as Cancelled and closes the underlying call. It wins
// against a reopen in flight.
func (s *subscription[T]) Cancel() {
	if s.transition(StateCancelled) {
		s.log.Debug("subscription cancelled")
	}
	s.cancel()
}

func (s *subscription[T]) start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.state = StatePending
	go s.run()
}

func (s *subscription[T]) run() {
	defer close(s.done)
	defer s.cancel()

	failures := 0
	for {
		if s.ctx.Err() != nil {
			s.finish(StateCancelled, nil)
			return
		}

		stream, err := s.conn.NewStream(s.ctx, s.desc)
		if err != nil {
			if s.stopped() {
				return
			}
			s.log.Debug("open stream failed", zap.Int("attempt", failures+1), zap.Error(err))
			if !s.backoff(failures) {
				return
			}
			failures++
			s.opts.metrics.Resubscribed(s.desc.String())
			continue
		}

		s.mu.Lock()
		s.opens++
		s.mu.Unlock()
		if !s.transition(StateActive) {
			stream.Close()
			s.finish(StateCancelled, nil)
			return
		}

		received, state, termErr := s.pump(stream)
		stream.Close()

		if state.Terminal() {
			s.finish(state, termErr)
			return
		}
		if s.stopped() {
			return
		}
		if !s.transition(StatePending) {
			s.finish(StateCancelled, nil)
			return
		}

		if received > 0 {
			failures = 0
		}
		s.log.Debug("stream dropped, reopening",
			zap.Int("received", received),
			zap.Int("attempt", failures+1),
			zap.NamedError("cause", termErr))
		if !s.backoff(failures) {
			return
		}
		failures++
		s.opts.metrics.Resubscribed(s.desc.String())
	}
}

// pump reads one underlying stream until it ends. It returns StatePending when the
// subscription must be reopened.
func (s *subscription[T]) pump(stream Stream) (int, State, error) {
	received := 0
	for {
		f, err := s.recv(stream)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// the server closed the stream without a terminal result
				return received, StatePending, err
			}
			return received, StatePending, result.FromTransport(s.desc.String(), err)
		}

		if f.res != nil {
			switch s.table.Kind(f.res.Code) {
			case result.KindSuccess:
				return received, StateCompleted, nil
			case result.KindDomainFailure:
				return received, StateFailed, s.table.Classify(f.res.Code, f.res.Message)
			default:
				return received, StatePending, s.table.Classify(f.res.Code, f.res.Message)
			}
		}
		if !f.ok {
			continue
		}

		received++
		s.emit(s, f.value)
	}
}

// stopped reports whether the subscription must not reopen, finishing it if so.
func (s *subscription[T]) stopped() bool {
	select {
	case <-s.conn.Done():
		s.finish(StateCancelled, ErrStreamClosed)
		return true
	default:
	}
	if s.ctx.Err() != nil {
		s.finish(StateCancelled, nil)
		return true
	}
	return false
}

// backoff waits before reopen attempt n (0-based). The first reopen is immediate.
func (s *subscription[T]) backoff(n int) bool {
	d := retryDelay(n, s.opts.retryBase, s.opts.retryMax)
	if d == 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		s.finish(StateCancelled, nil)
		return false
	case <-s.conn.Done():
		s.finish(StateCancelled, ErrStreamClosed)
		return false
	}
}

func retryDelay(n int, base, max time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	d := base
	for i := 1; i < n && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

func (s *subscription[T]) finish(state State, err error) {
	s.mu.Lock()
	if s.state != StateCancelled || state == StateCancelled {
		s.state = state
	}
	final := s.state
	s.mu.Unlock()

	if final != state {
		// cancelled by a listener while the final element was in flight
		err = nil
	}
	s.log.Debug("subscription finished", zap.Stringer("state", final), zap.Error(err))
	s.end(s, final, err)
}

// Opens returns how many times the underlying call has been opened.
func (s *subscription[T]) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}
