// WorkerPool delivers listener and future callbacks off the network receive path.
//
// The pool has a fixed number of workers regardless of how many streams are open.
// Each worker owns an unbounded FIFO, so Dispatch never blocks the goroutine that
// reads from the connection. Tasks with the same key always land on the same worker,
// which keeps the elements of one subscription in order:
//
//	Dispatch("telemetry.Position", f1) ──┐
//	Dispatch("telemetry.Position", f2) ──┼──▶ worker[crc32(key) % n]: f1, f2 (in order)
//	Dispatch("action.Arm", g)          ──┴──▶ worker[...]
package transport

import (
	"hash/crc32"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"drone-rpc/metrics"
)

// DefaultWorkers is the callback pool size when none is configured.
const DefaultWorkers = 2

// WorkerPool runs callbacks on a fixed set of workers, keyed for per-stream order.
type WorkerPool struct {
	workers []*worker
	next    atomic.Uint32
	log     *zap.Logger
	metrics *metrics.Metrics
}

type worker struct {
	id     int
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	exited bool
	pool   *WorkerPool
}

// NewWorkerPool starts size workers. A size below 1 uses DefaultWorkers.
func NewWorkerPool(size int, log *zap.Logger, m *metrics.Metrics) *WorkerPool {
	if size < 1 {
		size = DefaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &WorkerPool{
		workers: make([]*worker, size),
		log:     log,
		metrics: m,
	}
	for i := range p.workers {
		w := &worker{id: i, pool: p}
		w.cond = sync.NewCond(&w.mu)
		p.workers[i] = w
		go w.loop()
	}
	return p
}

func (p *WorkerPool) Size() int { return len(p.workers) }

// Dispatch queues fn. An empty key picks a worker round robin. Once the pool has
// closed and a worker has drained, its tasks run on their own goroutine.
func (p *WorkerPool) Dispatch(key string, fn func()) {
	var w *worker
	if key == "" {
		w = p.workers[int(p.next.Add(1)-1)%len(p.workers)]
	} else {
		w = p.workers[int(crc32.ChecksumIEEE([]byte(key))%uint32(len(p.workers)))]
	}

	w.mu.Lock()
	if w.exited {
		w.mu.Unlock()
		go w.run(fn)
		return
	}
	w.queue = append(w.queue, fn)
	w.mu.Unlock()
	w.cond.Signal()
}

// Close stops the workers once their queues are empty. It does not wait, so it is
// safe to call from a task.
func (p *WorkerPool) Close() error {
	for _, w := range p.workers {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.cond.Broadcast()
	}
	return nil
}

// Pending returns the number of queued tasks across all workers.
func (p *WorkerPool) Pending() int {
	n := 0
	for _, w := range p.workers {
		w.mu.Lock()
		n += len(w.queue)
		w.mu.Unlock()
	}
	return n
}

func (w *worker) loop() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.exited = true
			w.mu.Unlock()
			return
		}
		fn := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.run(fn)
	}
}

func (w *worker) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.metrics.DispatchPanicked()
			w.pool.log.Error("dispatched task panicked", zap.Int("worker", w.id), zap.Any("panic", r))
		}
	}()
	fn()
}
