package courier

import "context"

// SyncRequest starts r and blocks until it is terminal, then calls
// completion and returns r's error.
//
// cond, when non-nil, is evaluated immediately before blocking; if it
// returns false nothing is started, completion is called with the idle
// request and ErrSkipped is returned. Cancelling ctx cancels r.
//
// Must not be called from a completion callback.
func (m *Manager) SyncRequest(ctx context.Context, r *Request, cond func() bool, completion func(*Request)) error {
	if cond != nil && !cond() {
		if completion != nil {
			completion(r)
		}
		return ErrSkipped
	}

	m.Add(r)
	if err := wait(ctx, r.Done(), r.Cancel); err != nil {
		return err
	}
	if completion != nil {
		completion(r)
	}
	return r.Err()
}

// SyncBatch starts b and blocks until its terminal notification has run.
// It returns the first failed child's error, if any. See SyncRequest for
// cond and ctx.
func (m *Manager) SyncBatch(ctx context.Context, b *Batch, cond func() bool, completion func(*Batch)) error {
	if cond != nil && !cond() {
		if completion != nil {
			completion(b)
		}
		return ErrSkipped
	}

	b.Start()
	if err := wait(ctx, b.Done(), b.Stop); err != nil {
		return err
	}
	if completion != nil {
		completion(b)
	}
	return unitErr(b.State(), b.FailedRequest())
}

// SyncChain starts c and blocks until its terminal notification has run.
// See SyncRequest for cond and ctx.
func (m *Manager) SyncChain(ctx context.Context, c *Chain, cond func() bool, completion func(*Chain)) error {
	if cond != nil && !cond() {
		if completion != nil {
			completion(c)
		}
		return ErrSkipped
	}

	c.Start()
	if err := wait(ctx, c.Done(), c.Stop); err != nil {
		return err
	}
	if completion != nil {
		completion(c)
	}
	return unitErr(c.State(), c.FailedRequest())
}

// wait blocks until done closes. On ctx cancellation it calls stop, waits
// for the unit to settle and returns ctx's error.
func wait(ctx context.Context, done <-chan struct{}, stop func()) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		stop()
		<-done
		return ctx.Err()
	}
}

// unitErr maps a batch or chain terminal state to an error.
func unitErr(state State, failed *Request) error {
	switch state {
	case StateFailed:
		if failed != nil && failed.Err() != nil {
			return failed.Err()
		}
		return &Error{Kind: KindLogic, Message: "no step succeeded"}
	case StateCancelled:
		return &Error{Kind: KindCancelled, Message: "cancelled"}
	default:
		return nil
	}
}
