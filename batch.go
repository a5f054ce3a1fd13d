package courier

import "sync"

// Batch runs a set of requests concurrently and reports one joint outcome.
//
// Exactly one terminal notification fires per run: success, failure, or
// cancelled. A child cancelled from outside the batch stops the batch.
type Batch struct {
	mgr           *Manager
	requests      []*Request
	stopOnFailure bool
	accessories   []Accessory
	onSuccess     func(*Batch)
	onFailure     func(*Batch)
	onCancelled   func(*Batch)

	mu       sync.Mutex
	id       string
	state    State
	finished int
	failed   *Request
	failures []*Request
	done     chan struct{}
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// BatchStopOnFailure controls whether the first failure cancels the
// remaining children and fails the batch. Defaults to true.
func BatchStopOnFailure(stop bool) BatchOption {
	return func(b *Batch) { b.stopOnFailure = stop }
}

// BatchAccessory appends an accessory observing the batch.
func BatchAccessory(a Accessory) BatchOption {
	return func(b *Batch) { b.accessories = append(b.accessories, a) }
}

// OnBatchSuccess sets the callback for a batch whose children all finished.
func OnBatchSuccess(fn func(*Batch)) BatchOption {
	return func(b *Batch) { b.onSuccess = fn }
}

// OnBatchFailure sets the callback for a batch stopped by a failed child.
func OnBatchFailure(fn func(*Batch)) BatchOption {
	return func(b *Batch) { b.onFailure = fn }
}

// OnBatchCancelled sets the callback for a batch stopped by cancellation.
func OnBatchCancelled(fn func(*Batch)) BatchOption {
	return func(b *Batch) { b.onCancelled = fn }
}

// NewBatch builds an idle batch over requests.
func (m *Manager) NewBatch(requests []*Request, opts ...BatchOption) *Batch {
	b := &Batch{
		mgr:           m,
		requests:      append([]*Request(nil), requests...),
		stopOnFailure: true,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID returns the identity assigned when the batch started.
func (b *Batch) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// State returns the batch state.
func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Requests returns the children in submission order.
func (b *Batch) Requests() []*Request {
	return append([]*Request(nil), b.requests...)
}

// FailedRequest returns the first child that failed, if any.
func (b *Batch) FailedRequest() *Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed
}

// FailedRequests returns every failed child, in completion order.
func (b *Batch) FailedRequests() []*Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Request(nil), b.failures...)
}

// Completed returns how many children reached a terminal state while the
// batch was running.
func (b *Batch) Completed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

// Done is closed after the batch's terminal notification.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Start submits every child. An empty batch succeeds immediately.
func (b *Batch) Start() {
	b.mu.Lock()
	if b.state != StateIdle {
		b.mu.Unlock()
		return
	}
	b.state = StateStarted
	b.mu.Unlock()

	b.mgr.AddBatch(b)
	willStart(b.accessories, b)
	b.mgr.logger.Debug("batch started", "id", b.ID(), "requests", len(b.requests))

	if len(b.requests) == 0 {
		b.finish(StateSucceeded)
		return
	}
	for _, r := range b.requests {
		r.onTerminal(b.childDone)
	}
	for _, r := range b.requests {
		b.mgr.Add(r)
	}
}

// Stop cancels every child that has not finished. No success or failure
// callback fires.
func (b *Batch) Stop() {
	b.mu.Lock()
	prev := b.state
	if prev.Terminal() {
		b.mu.Unlock()
		return
	}
	b.state = StateCancelled
	b.mu.Unlock()

	if prev == StateIdle {
		close(b.done)
		return
	}
	b.cancelChildren()
	b.notify(StateCancelled)
}

// childDone observes a child reaching a terminal state.
func (b *Batch) childDone(r *Request) {
	state := r.State()

	b.mu.Lock()
	if b.state != StateStarted {
		b.mu.Unlock()
		return
	}
	b.finished++

	switch state {
	case StateCancelled:
		b.state = StateCancelled
		b.mu.Unlock()
		b.mgr.logger.Debug("batch child cancelled externally", "id", b.id, "request", r.ID())
		b.cancelChildren()
		b.notify(StateCancelled)
		return
	case StateFailed:
		b.failures = append(b.failures, r)
		if b.failed == nil {
			b.failed = r
		}
		if b.stopOnFailure {
			b.state = StateFailed
			b.mu.Unlock()
			b.cancelChildren()
			b.notify(StateFailed)
			return
		}
	}

	if b.finished < len(b.requests) {
		b.mu.Unlock()
		return
	}
	b.state = StateSucceeded
	b.mu.Unlock()
	b.notify(StateSucceeded)
}

func (b *Batch) finish(state State) {
	b.mu.Lock()
	if b.state != StateStarted {
		b.mu.Unlock()
		return
	}
	b.state = state
	b.mu.Unlock()
	b.notify(state)
}

func (b *Batch) cancelChildren() {
	for _, r := range b.requests {
		r.Cancel()
	}
}

// notify fires the terminal notification for state. Callers must have
// won the transition out of StateStarted.
func (b *Batch) notify(state State) {
	b.mgr.logger.Debug("batch finished", "id", b.ID(), "state", state.String())
	stopSequence(b.accessories, b, func() {
		var cb func(*Batch)
		switch state {
		case StateSucceeded:
			cb = b.onSuccess
		case StateFailed:
			cb = b.onFailure
		case StateCancelled:
			cb = b.onCancelled
		}
		if cb != nil {
			cb(b)
		}
	})
	b.mgr.RemoveBatch(b)
	close(b.done)
}
