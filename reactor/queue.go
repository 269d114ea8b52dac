package reactor

import (
	"errors"
	"sync"

	"github.com/leon-m/cool.ng/api"
)

// ErrUnsupportedPlatform is returned by NewQueue on platforms without a
// poll-mode backend; see queue_other.go.
var ErrUnsupportedPlatform = errors.New("reactor: this platform is not supported")

// readyEvent is one readiness notification returned by a poller's wait call.
type readyEvent struct {
	fd    int
	write bool
}

// poller is the platform adapter this package multiplexes over: register
// and unregister readiness interest for one fd/direction pair, and block
// until at least one registered fd becomes ready.
type poller interface {
	add(fd int, write bool) error
	remove(fd int, write bool) error
	wait() ([]readyEvent, error)
	close() error
}

// newPlatformPoller constructs the platform-specific poller backend.
// Implemented in queue_linux.go and queue_other.go.
func newPlatformPoller() (poller, error) {
	return newPoller()
}

// Queue binds one poller to one Runner. Sources created on a Queue have
// their event and cancel callbacks delivered through that Runner's
// Schedule, so all of them are totally ordered with respect to one
// another and to any other work posted to the same Runner.
type Queue struct {
	runner api.Runner
	impl   poller

	mu      sync.Mutex
	sources map[fdKey]*Source

	closeOnce sync.Once
	done      chan struct{}
}

type fdKey struct {
	fd    int
	write bool
}

// NewQueue creates a Queue bound to r and starts its poll loop. The
// caller owns the Queue's lifetime; Close stops the poll loop and
// releases the platform backend.
func NewQueue(r api.Runner) (*Queue, error) {
	impl, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	q := &Queue{
		runner:  r,
		impl:    impl,
		sources: make(map[fdKey]*Source),
		done:    make(chan struct{}),
	}
	go q.run()
	return q, nil
}

func (q *Queue) run() {
	for {
		select {
		case <-q.done:
			return
		default:
		}
		events, err := q.impl.wait()
		if err != nil {
			continue
		}
		for _, ev := range events {
			q.mu.Lock()
			s := q.sources[fdKey{ev.fd, ev.write}]
			q.mu.Unlock()
			if s == nil {
				continue
			}
			q.runner.Schedule(s.invoke)
		}
	}
}

// Close tears down the poll loop and the underlying platform backend.
// Sources must be cancelled by their owners before or independently of
// Close; Close itself does not fire any cancel callbacks.
func (q *Queue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.done)
		err = q.impl.close()
	})
	return err
}

// CreateRead creates a read-readiness source for fd. The source begins
// suspended; call Resume to arm it.
func (q *Queue) CreateRead(fd int) (*Source, error) { return q.create(fd, false) }

// CreateWrite creates a write-readiness source for fd. The source begins
// suspended; call Resume to arm it.
func (q *Queue) CreateWrite(fd int) (*Source, error) { return q.create(fd, true) }

func (q *Queue) create(fd int, write bool) (*Source, error) {
	if fd < 0 {
		return nil, api.IllegalArgument("invalid file descriptor")
	}
	s := &Source{queue: q, fd: fd, write: write}
	q.mu.Lock()
	q.sources[fdKey{fd, write}] = s
	q.mu.Unlock()
	return s, nil
}

func (q *Queue) forget(fd int, write bool) {
	q.mu.Lock()
	delete(q.sources, fdKey{fd, write})
	q.mu.Unlock()
}
