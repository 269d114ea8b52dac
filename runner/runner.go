// Package runner provides SerialRunner, a concrete, single-threaded
// cooperative Runner: the FIFO queue the reactor and task packages
// schedule callbacks onto.
//
// The Runner abstraction itself is treated as an external collaborator
// by the rest of this module (see api.Runner) -- but something has to
// implement it, and the simplest faithful model is one dedicated
// goroutine per runner draining one FIFO queue, one function at a time,
// with no intra-runner concurrency. That is exactly what SerialRunner
// does (the goroutine is not locked to an OS thread), backed by an eapache/queue ring buffer instead of a channel so
// that Schedule never blocks its caller even when the runner is busy.
package runner

import (
	"sync"

	"github.com/eapache/queue"
)

// SerialRunner drains one FIFO queue of scheduled functions on a single
// dedicated goroutine, one at a time, in the order they were posted.
type SerialRunner struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
	done   chan struct{}
}

// New starts a SerialRunner named name on its own goroutine.
func New(name string) *SerialRunner {
	r := &SerialRunner{
		name: name,
		q:    queue.New(),
		done: make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.loop()
	return r
}

// Name identifies the runner for diagnostics.
func (r *SerialRunner) Name() string { return r.name }

// Schedule posts fn to the runner's FIFO queue. Safe for concurrent use
// from any goroutine, including from a callback running on a different
// runner's queue. A Schedule call after Close is silently dropped.
func (r *SerialRunner) Schedule(fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.q.Add(fn)
	r.cond.Signal()
	r.mu.Unlock()
}

// Pending reports the number of functions currently queued, for tests
// and diagnostics.
func (r *SerialRunner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Length()
}

// Close stops accepting new work and lets the goroutine exit once the
// queue drains. Work scheduled after Close is dropped, matching the
// "shutdown of the owning runner drops pending continuations" contract
// the loop task relies on.
func (r *SerialRunner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
	<-r.done
}

func (r *SerialRunner) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for r.q.Length() == 0 && !r.closed {
			r.cond.Wait()
		}
		if r.q.Length() == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.q.Remove().(func())
		r.mu.Unlock()

		runGuarded(fn)
	}
}

// runGuarded recovers from a panicking scheduled function so one bad
// callback cannot take the whole runner down.
func runGuarded(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
