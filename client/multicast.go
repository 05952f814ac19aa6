package client

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"drone-rpc/message"
	"drone-rpc/result"
)

// StreamSpec describes how a domain decodes the elements of one streaming call.
type StreamSpec[Elem any, T any] struct {
	// Table classifies results embedded in elements. A nil Table means elements
	// never carry a result.
	Table *result.Table
	// Result extracts an embedded result. Nil return means the element is a plain
	// value. Progress codes that are not terminal should map to nil here.
	Result func(*Elem) *result.Result
	// Value extracts the payload. ok=false drops the element.
	Value func(*Elem) (T, bool)
}

func (s StreamSpec[Elem, T]) recv(st Stream) (frame[T], error) {
	elem := new(Elem)
	if err := st.Recv(elem); err != nil {
		return frame[T]{}, err
	}
	var f frame[T]
	if s.Table != nil && s.Result != nil {
		f.res = s.Result(elem)
		if f.res != nil {
			return f, nil
		}
	}
	if s.Value != nil {
		f.value, f.ok = s.Value(elem)
	}
	return f, nil
}

// Multicast fans out one live subscription to any number of listeners.
//
// The subscription is opened when the first listener attaches and cancelled as soon
// as the last listener detaches; the cached latest element is dropped with it, so
// re-attaching opens a new remote call. A listener attaching to a live subscription
// first receives the latest element, then everything after it.
type Multicast[T any] struct {
	conn  Conn
	desc  message.Descriptor
	table *result.Table
	recv  func(Stream) (frame[T], error)
	opts  options
	log   *zap.Logger

	mu        sync.Mutex
	sub       *subscription[T]
	listeners map[*Listener[T]]struct{}
	latest    T
	hasLatest bool
}

// NewMulticast builds the multicast stream for desc. Nothing is opened until the
// first listener subscribes.
func NewMulticast[Elem any, T any](conn Conn, desc message.Descriptor, spec StreamSpec[Elem, T], opts ...Option) *Multicast[T] {
	o := buildOptions(opts)
	return &Multicast[T]{
		conn:      conn,
		desc:      desc,
		table:     spec.Table,
		recv:      spec.recv,
		opts:      o,
		log:       o.logger.Named("stream").With(zap.String("method", desc.String())),
		listeners: make(map[*Listener[T]]struct{}),
	}
}

// Listener is one attachment to a Multicast.
type Listener[T any] struct {
	id     string
	m      *Multicast[T]
	onNext func(T)
	onDone func(error)
	closed atomic.Bool
}

func (l *Listener[T]) ID() string { return l.id }

// Close detaches the listener. No callback runs after Close returns, except one
// already executing.
func (l *Listener[T]) Close() {
	if l.closed.Swap(true) {
		return
	}
	l.m.detach(l)
}

// Subscribe attaches a listener. onNext receives elements; onDone receives the
// terminal signal: nil on completion, a *result.DomainError on failure or
// ErrStreamClosed when the connection is torn down. Callbacks run on the worker pool.
// Either callback may be nil.
func (m *Multicast[T]) Subscribe(onNext func(T), onDone func(error)) *Listener[T] {
	l := &Listener[T]{
		id:     uuid.NewString(),
		m:      m,
		onNext: onNext,
		onDone: onDone,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners[l] = struct{}{}
	m.opts.metrics.Listeners(m.desc.String(), len(m.listeners))

	if m.sub == nil {
		m.startLocked()
	} else if m.hasLatest {
		m.deliverLocked(l, m.latest)
	}
	m.log.Debug("listener attached", zap.String("listener", l.id), zap.Int("listeners", len(m.listeners)))
	return l
}

func (m *Multicast[T]) startLocked() {
	id := uuid.NewString()
	s := &subscription[T]{
		id:    id,
		conn:  m.conn,
		desc:  m.desc,
		table: m.table,
		recv:  m.recv,
		opts:  m.opts,
		log:   m.log.With(zap.String("subscription", id)),
		emit:  m.emit,
		end:   m.end,
	}
	m.sub = s
	m.hasLatest = false
	s.start()
}

func (m *Multicast[T]) detach(l *Listener[T]) {
	m.mu.Lock()
	if _, ok := m.listeners[l]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.listeners, l)
	m.opts.metrics.Listeners(m.desc.String(), len(m.listeners))

	var sub *subscription[T]
	if len(m.listeners) == 0 && m.sub != nil {
		sub = m.sub
		m.sub = nil
		m.hasLatest = false
		var zero T
		m.latest = zero
	}
	m.mu.Unlock()

	m.log.Debug("listener detached", zap.String("listener", l.id))
	if sub != nil {
		sub.Cancel()
	}
}

func (m *Multicast[T]) emit(s *subscription[T], v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != s {
		return
	}
	m.latest = v
	m.hasLatest = true
	for l := range m.listeners {
		m.deliverLocked(l, v)
	}
}

func (m *Multicast[T]) end(s *subscription[T], state State, err error) {
	m.mu.Lock()
	if m.sub != s {
		m.mu.Unlock()
		return
	}
	m.sub = nil
	m.hasLatest = false
	var zero T
	m.latest = zero

	listeners := m.listeners
	m.listeners = make(map[*Listener[T]]struct{})
	for l := range listeners {
		m.finishLocked(l, err)
	}
	m.mu.Unlock()

	m.opts.metrics.Listeners(m.desc.String(), 0)
	if state == StateFailed {
		m.opts.metrics.Outcome(m.desc.String(), result.KindDomainFailure.String())
	}
}

// deliverLocked queues v for l. Must hold m.mu so that replay and live elements
// enter the worker queue in order.
func (m *Multicast[T]) deliverLocked(l *Listener[T], v T) {
	if l.onNext == nil {
		return
	}
	m.conn.Dispatch(m.desc.String(), func() {
		if !l.closed.Load() {
			l.onNext(v)
		}
	})
}

func (m *Multicast[T]) finishLocked(l *Listener[T], err error) {
	m.conn.Dispatch(m.desc.String(), func() {
		if l.closed.Swap(true) {
			return
		}
		if l.onDone != nil {
			l.onDone(err)
		}
	})
}

// Listeners returns the number of attached listeners.
func (m *Multicast[T]) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// State returns the state of the live subscription, or StateIdle.
func (m *Multicast[T]) State() State {
	m.mu.Lock()
	sub := m.sub
	m.mu.Unlock()
	if sub == nil {
		return StateIdle
	}
	return sub.State()
}

// Latest returns the most recent element of the live subscription.
func (m *Multicast[T]) Latest() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.hasLatest
}

// Close cancels the live subscription and detaches every listener. Each attached
// listener receives ErrStreamClosed. A later Subscribe opens a new remote call.
func (m *Multicast[T]) Close() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.hasLatest = false
	var zero T
	m.latest = zero

	listeners := m.listeners
	m.listeners = make(map[*Listener[T]]struct{})
	for l := range listeners {
		m.finishLocked(l, ErrStreamClosed)
	}
	m.mu.Unlock()

	m.opts.metrics.Listeners(m.desc.String(), 0)
	if sub != nil {
		sub.Cancel()
	}
}

// All returns an iterator over the stream's elements. Iteration ends when ctx is
// done, the consumer stops or the stream terminates; a terminal error other than
// plain completion is yielded as the last pair.
func (m *Multicast[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		q := newQueue[T]()
		l := m.Subscribe(q.push, q.finish)
		defer l.Close()

		for {
			it, ok := q.pop(ctx)
			if !ok {
				return
			}
			if it.done {
				if it.err != nil {
					var zero T
					yield(zero, it.err)
				}
				return
			}
			if !yield(it.value, nil) {
				return
			}
		}
	}
}

type item[T any] struct {
	value T
	done  bool
	err   error
}

// queue buffers elements for All without blocking the worker that delivers them.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	done   bool
	err    error
	signal chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{signal: make(chan struct{}, 1)}
}

func (q *queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.notify()
}

func (q *queue[T]) finish(err error) {
	q.mu.Lock()
	q.done = true
	q.err = err
	q.mu.Unlock()
	q.notify()
}

// pop returns the next element, or the terminal item once the buffer is drained.
// ok is false when ctx ends first.
func (q *queue[T]) pop(ctx context.Context) (item[T], bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item[T]{value: v}, true
		}
		if q.done {
			it := item[T]{done: true, err: q.err}
			q.mu.Unlock()
			return it, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return item[T]{}, false
		}
	}
}
