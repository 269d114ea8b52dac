package api

// Runner is a single-threaded cooperative execution context: an external
// collaborator of this module. A Runner exposes just enough surface for
// the reactor and task layers to serialize callbacks onto it; ownership
// of the underlying goroutine and its queue belongs to the implementation.
//
// Every callback the reactor and netio packages deliver for sources bound
// to a given Runner is posted through Schedule and therefore executes
// serially, in FIFO order, with no intra-runner concurrency.
type Runner interface {
	// Schedule posts fn to run on the runner's FIFO queue. Schedule never
	// blocks the caller and is safe to call from any goroutine, including
	// from within a callback already running on a (possibly different)
	// runner's queue.
	Schedule(fn func())

	// Name identifies the runner for diagnostics.
	Name() string
}

// EventSource is the common lifecycle contract shared by every dispatch
// based source: servers and streams alike.
//
// start is a no-op once shutdown has run. stop before start is a no-op.
// shutdown transitions to a terminal state from any other state, never
// fails, and is idempotent: once it returns, no further callbacks fire
// for this source.
type EventSource interface {
	Name() string
	Start()
	Stop()
	Shutdown()
}
