package store

import (
	"sync"
	"sync/atomic"
)

type subscriber struct {
	id     uint64
	path   string
	fn     func(Snapshot)
	active atomic.Bool
}

// dispatcher delivers notifications one at a time, in enqueue order, on its
// own goroutine. The queue is unbounded so a callback may write to the store
// without deadlocking the writer.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	pending int
	closed  bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) deliver(sub *subscriber, snap Snapshot) {
	d.enqueue(func() {
		if sub.active.Load() {
			sub.fn(snap)
		}
	})
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.pending++
	d.cond.Broadcast()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()

		d.mu.Lock()
		d.pending--
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

// wait blocks until every queued notification, including ones enqueued by
// callbacks while waiting, has been delivered.
func (d *dispatcher) wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.cond.Wait()
	}
}

func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
}
