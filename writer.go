package courier

import "sync"

// cacheWriter runs background cache writes one at a time, in the order they
// were queued. Completions are queued from the dispatcher, so a location
// always ends up holding the response that completed last.
//
// The drain goroutine exists only while work is pending.
type cacheWriter struct {
	mu      sync.Mutex
	idle    *sync.Cond
	jobs    []func()
	running bool
}

func newCacheWriter() *cacheWriter {
	w := &cacheWriter{}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Enqueue adds job behind every write queued before it.
func (w *cacheWriter) Enqueue(job func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobs = append(w.jobs, job)
	if !w.running {
		w.running = true
		go w.drain()
	}
}

func (w *cacheWriter) drain() {
	for {
		w.mu.Lock()
		if len(w.jobs) == 0 {
			w.running = false
			w.idle.Broadcast()
			w.mu.Unlock()
			return
		}
		job := w.jobs[0]
		w.jobs[0] = nil
		w.jobs = w.jobs[1:]
		w.mu.Unlock()

		job()
	}
}

// Wait blocks until the queue is empty and no write is running. Writes
// queued while Wait blocks are waited for too.
func (w *cacheWriter) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.running {
		w.idle.Wait()
	}
}
