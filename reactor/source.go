package reactor

import (
	"sync"

	"github.com/leon-m/cool.ng/api"
	"golang.org/x/sys/unix"
)

// Source is one dispatch source: a readiness notifier for a single file
// descriptor in a single direction (read or write), paired with an
// armed/suspended flag and event/cancel callbacks.
//
// A Source begins suspended. Resume is idempotent: the armed flag
// prevents a nested epoll_ctl ADD. Cancel always arms a suspended source
// first, so no source is cancelled while suspended, then removes it from
// the poller and schedules the cancel callback directly on the owning
// Queue's Runner: it is delivered exactly once, after any event callback
// already in flight for this Source has returned.
type Source struct {
	queue *Queue
	fd    int
	write bool

	mu       sync.Mutex
	armed    bool
	canceled bool
	onEvent  func()
	onCancel func()
}

// SetEvent installs the readiness callback, invoked once per readiness
// notification while the source is armed.
func (s *Source) SetEvent(fn func()) {
	s.mu.Lock()
	s.onEvent = fn
	s.mu.Unlock()
}

// SetCancel installs the teardown callback, invoked exactly once when
// Cancel completes.
func (s *Source) SetCancel(fn func()) {
	s.mu.Lock()
	s.onCancel = fn
	s.mu.Unlock()
}

// Resume arms the source. Calling Resume on an already-armed or
// cancelled source is a no-op.
func (s *Source) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed || s.canceled {
		return nil
	}
	if err := s.queue.impl.add(s.fd, s.write); err != nil {
		return api.OperationFailed(err.Error())
	}
	s.armed = true
	return nil
}

// Suspend disarms the source without destroying it. Calling Suspend on
// an already-suspended source is a no-op.
func (s *Source) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return nil
	}
	if err := s.queue.impl.remove(s.fd, s.write); err != nil {
		return api.OperationFailed(err.Error())
	}
	s.armed = false
	return nil
}

// Cancel tears the source down. It is idempotent: a second call after
// the first completes is a silent no-op.
func (s *Source) Cancel() {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	if !s.armed {
		// A source is armed before it is cancelled. Arm it directly
		// here (rather than via Resume, which would no-op once canceled
		// is set below, and would deadlock on this same mutex anyway).
		if err := s.queue.impl.add(s.fd, s.write); err == nil {
			s.armed = true
		}
	}
	s.canceled = true
	s.mu.Unlock()

	s.queue.forget(s.fd, s.write)
	_ = s.queue.impl.remove(s.fd, s.write)

	s.queue.runner.Schedule(func() {
		s.mu.Lock()
		cb := s.onCancel
		s.mu.Unlock()
		if cb != nil {
			api.Guard(cb)
		}
	})
}

// invoke runs the event callback if the source is still live. It is
// always called on the owning Queue's Runner.
func (s *Source) invoke() {
	s.mu.Lock()
	canceled := s.canceled
	armed := s.armed
	cb := s.onEvent
	s.mu.Unlock()
	if canceled || !armed || cb == nil {
		return
	}
	api.Guard(cb)
}

// Pending reports the platform's readiness hint at event time for a
// connected socket: the number of bytes available to read. It uses
// FIONREAD, which Linux rejects on a listening socket, so it returns an
// error there rather than an accept backlog depth.
func Pending(fd int) (int, error) {
	n, err := unix.IoctlGetInt(fd, unix.FIONREAD)
	if err != nil {
		return 0, api.OperationFailed(err.Error())
	}
	return n, nil
}
