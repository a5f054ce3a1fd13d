package courier

import (
	"fmt"
	"log/slog"
	"sync"
)

// dispatcher runs completion work on a single goroutine in FIFO order.
//
// The queue is unbounded so a callback may enqueue further work (a batch
// cancelling its siblings, a chain submitting its next step) without
// blocking on itself.
//
// Enqueue may be called from any goroutine; only run dequeues.
type dispatcher struct {
	mu      sync.Mutex
	events  []func()
	closed  bool
	signal  chan struct{} // buffered, size 1
	stopped chan struct{}
	logger  *slog.Logger
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		events:  make([]func(), 0, 64),
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	go d.run()
	return d
}

// Enqueue adds fn to the back of the queue.
// Returns false if the dispatcher is closed.
func (d *dispatcher) Enqueue(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	d.events = append(d.events, fn)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue pops the front event without blocking.
func (d *dispatcher) tryDequeue() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.events) == 0 {
		return nil, false
	}

	fn := d.events[0]
	// Nil out the slot so the closure's captures can be collected.
	d.events[0] = nil
	if len(d.events) == 1 {
		d.events = d.events[:0]
	} else {
		d.events = d.events[1:]
	}
	return fn, true
}

func (d *dispatcher) drained() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed && len(d.events) == 0
}

func (d *dispatcher) run() {
	defer close(d.stopped)
	for {
		if fn, ok := d.tryDequeue(); ok {
			d.invoke(fn)
			continue
		}
		if d.drained() {
			d.logger.Info("dispatcher stopped")
			return
		}
		<-d.signal
	}
}

// invoke runs fn, logging a panic instead of killing the loop.
func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("completion callback panicked", "panic", fmt.Sprint(p))
		}
	}()
	fn()
}

// Close stops accepting work and blocks until every queued event has run.
// Must not be called from the dispatcher goroutine.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.signal)
	}
	d.mu.Unlock()
	<-d.stopped
}
