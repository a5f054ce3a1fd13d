package courier

import (
	"sync"
	"time"
)

// StepFunc runs after a chain step succeeds, before the chain advances.
// It may Add further steps.
type StepFunc func(c *Chain, r *Request)

// BuilderFunc produces the next step from the previous one; it receives
// nil for the first step. Returning nil ends the chain.
type BuilderFunc func(prev *Request) *Request

type chainStep struct {
	req    *Request
	onStep StepFunc
}

// Chain runs requests strictly one after another.
//
// Steps come from a static list (Add) or from a builder. A step is not
// submitted before the previous one is terminal.
type Chain struct {
	mgr           *Manager
	builder       BuilderFunc
	stopOnFailure bool
	stopOnSuccess bool
	interval      time.Duration
	accessories   []Accessory
	onSuccess     func(*Chain)
	onFailure     func(*Chain)
	onCancelled   func(*Chain)

	mu            sync.Mutex
	id            string
	state         State
	steps         []chainStep
	next          int
	current       *Request
	currentStep   StepFunc
	lastSucceeded *Request
	lastFailed    *Request
	stopTimer     func() bool
	done          chan struct{}
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// ChainStopOnFailure ends the chain at the first failed step. Defaults to true.
func ChainStopOnFailure(stop bool) ChainOption {
	return func(c *Chain) { c.stopOnFailure = stop }
}

// ChainStopOnSuccess ends the chain at the first succeeded step.
func ChainStopOnSuccess(stop bool) ChainOption {
	return func(c *Chain) { c.stopOnSuccess = stop }
}

// ChainInterval waits d between a step finishing and the next starting.
func ChainInterval(d time.Duration) ChainOption {
	return func(c *Chain) { c.interval = d }
}

// WithBuilder produces steps dynamically instead of from Add.
func WithBuilder(fn BuilderFunc) ChainOption {
	return func(c *Chain) { c.builder = fn }
}

// ChainAccessory appends an accessory observing the chain.
func ChainAccessory(a Accessory) ChainOption {
	return func(c *Chain) { c.accessories = append(c.accessories, a) }
}

// OnChainSuccess sets the callback for a chain that ended successfully.
func OnChainSuccess(fn func(*Chain)) ChainOption {
	return func(c *Chain) { c.onSuccess = fn }
}

// OnChainFailure sets the callback for a chain ended by a failed step.
func OnChainFailure(fn func(*Chain)) ChainOption {
	return func(c *Chain) { c.onFailure = fn }
}

// OnChainCancelled sets the callback for a chain stopped by cancellation.
func OnChainCancelled(fn func(*Chain)) ChainOption {
	return func(c *Chain) { c.onCancelled = fn }
}

// NewChain builds an idle chain.
func (m *Manager) NewChain(opts ...ChainOption) *Chain {
	c := &Chain{
		mgr:           m,
		stopOnFailure: true,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add appends a static step. onStep may be nil. Steps may be added while
// the chain runs, typically from an onStep callback.
func (c *Chain) Add(r *Request, onStep StepFunc) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, chainStep{req: r, onStep: onStep})
	return c
}

// ID returns the identity assigned when the chain started.
func (c *Chain) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// State returns the chain state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the running step, nil between steps.
func (c *Chain) Current() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LastSucceeded returns the most recent succeeded step.
func (c *Chain) LastSucceeded() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSucceeded
}

// FailedRequest returns the most recent failed step.
func (c *Chain) FailedRequest() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFailed
}

// Done is closed after the chain's terminal notification.
func (c *Chain) Done() <-chan struct{} { return c.done }

// Start submits the first step. A chain without steps succeeds immediately.
func (c *Chain) Start() {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateStarted
	c.mu.Unlock()

	c.mgr.AddChain(c)
	willStart(c.accessories, c)
	c.mgr.logger.Debug("chain started", "id", c.ID())

	r, onStep := c.advance(nil)
	if r == nil {
		c.finish(StateSucceeded)
		return
	}
	c.submit(r, onStep)
}

// Stop cancels the running step and any pending interval. The builder is
// not called again and no success or failure callback fires.
func (c *Chain) Stop() {
	c.mu.Lock()
	prev := c.state
	if prev.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = StateCancelled
	cur := c.current
	c.current = nil
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.mu.Unlock()

	if prev == StateIdle {
		close(c.done)
		return
	}
	if cur != nil {
		cur.Cancel()
	}
	c.notify(StateCancelled)
}

// advance returns the step following prev.
func (c *Chain) advance(prev *Request) (*Request, StepFunc) {
	c.mu.Lock()
	if c.state != StateStarted {
		c.mu.Unlock()
		return nil, nil
	}
	if c.builder == nil {
		defer c.mu.Unlock()
		if c.next >= len(c.steps) {
			return nil, nil
		}
		s := c.steps[c.next]
		c.next++
		return s.req, s.onStep
	}
	build := c.builder
	c.mu.Unlock()
	return build(prev), nil
}

func (c *Chain) submit(r *Request, onStep StepFunc) {
	c.mu.Lock()
	if c.state != StateStarted {
		c.mu.Unlock()
		return
	}
	c.stopTimer = nil
	c.current = r
	c.currentStep = onStep
	c.mu.Unlock()

	r.onTerminal(c.stepDone)
	c.mgr.Add(r)
}

// stepDone observes the running step reaching a terminal state.
func (c *Chain) stepDone(r *Request) {
	state := r.State()

	c.mu.Lock()
	if c.state != StateStarted || c.current != r {
		c.mu.Unlock()
		return
	}
	c.current = nil
	onStep := c.currentStep
	c.currentStep = nil

	switch state {
	case StateCancelled:
		c.state = StateCancelled
		c.mu.Unlock()
		c.mgr.logger.Debug("chain step cancelled externally", "id", c.id, "request", r.ID())
		c.notify(StateCancelled)
		return
	case StateFailed:
		c.lastFailed = r
		if c.stopOnFailure {
			c.state = StateFailed
			c.mu.Unlock()
			c.notify(StateFailed)
			return
		}
		c.mu.Unlock()
	case StateSucceeded:
		c.lastSucceeded = r
		c.mu.Unlock()
		if onStep != nil {
			onStep(c, r)
		}
		if c.stopOnSuccess {
			c.finish(StateSucceeded)
			return
		}
	default:
		c.mu.Unlock()
	}

	next, nextStep := c.advance(r)
	if next == nil {
		// Out of steps. With stopOnSuccess that means nothing succeeded.
		if c.stopOnSuccess {
			c.finish(StateFailed)
		} else {
			c.finish(StateSucceeded)
		}
		return
	}

	c.mu.Lock()
	if c.state != StateStarted {
		c.mu.Unlock()
		return
	}
	if c.interval <= 0 {
		c.mu.Unlock()
		c.submit(next, nextStep)
		return
	}
	c.stopTimer = c.mgr.afterFunc(c.interval, func() { c.submit(next, nextStep) })
	c.mu.Unlock()
}

func (c *Chain) finish(state State) {
	c.mu.Lock()
	if c.state != StateStarted {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	c.notify(state)
}

// notify fires the terminal notification for state. Callers must have
// won the transition out of StateStarted.
func (c *Chain) notify(state State) {
	c.mgr.logger.Debug("chain finished", "id", c.ID(), "state", state.String())
	stopSequence(c.accessories, c, func() {
		var cb func(*Chain)
		switch state {
		case StateSucceeded:
			cb = c.onSuccess
		case StateFailed:
			cb = c.onFailure
		case StateCancelled:
			cb = c.onCancelled
		}
		if cb != nil {
			cb(c)
		}
	})
	c.mgr.RemoveChain(c)
	close(c.done)
}
