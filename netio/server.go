package netio

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/leon-m/cool.ng/api"
	"github.com/leon-m/cool.ng/reactor"
	"golang.org/x/sys/unix"
)

// listenBacklog matches the contract's fixed listen backlog.
const listenBacklog = 10

// Server listens on one TCP address, accepts connections and reports
// each one to a weakly-held handler. H is the handler's concrete
// struct type; PH pins *H as the type that must implement
// api.ServerHandler, so handlers are free to use pointer-receiver
// methods and mutable fields, the common case.
type Server[H any, PH api.ServerHandlerPtr[H]] struct {
	name    string
	runner  api.Runner
	queue   *reactor.Queue
	fd      int
	source  *reactor.Source
	handler api.WeakHandler[H]

	mu        sync.Mutex
	started   bool
	destroyed bool
}

// NewServer creates a listening socket bound to addr:port and wraps it
// in a Server. The socket is created, SO_REUSEADDR is set, it is bound
// and put into listen mode with a backlog of listenBacklog, all before
// any dispatch source exists -- so construction failures surface
// synchronously rather than through a later callback.
func NewServer[H any, PH api.ServerHandlerPtr[H]](name string, r api.Runner, q *reactor.Queue, addr netip.Addr, port int, handler PH) (*Server[H, PH], error) {
	fd, err := unix.Socket(socketFamily(addr), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, api.OperationFailed(fmt.Sprintf("socket: %v", err))
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, api.OperationFailed(fmt.Sprintf("setsockopt(SO_REUSEADDR): %v", err))
	}
	if err := unix.Bind(fd, toSockaddr(addr, port)); err != nil {
		unix.Close(fd)
		return nil, api.OperationFailed(fmt.Sprintf("bind: %v", err))
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, api.OperationFailed(fmt.Sprintf("listen: %v", err))
	}
	return newServerFromListenFD[H, PH](name, r, q, fd, handler)
}

// NewServerFromFD adopts an already-listening fd (the adopt-constructor
// variant), taking ownership of it.
func NewServerFromFD[H any, PH api.ServerHandlerPtr[H]](name string, r api.Runner, q *reactor.Queue, fd int, handler PH) (*Server[H, PH], error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, api.OperationFailed(fmt.Sprintf("set non-blocking: %v", err))
	}
	return newServerFromListenFD[H, PH](name, r, q, fd, handler)
}

func newServerFromListenFD[H any, PH api.ServerHandlerPtr[H]](name string, r api.Runner, q *reactor.Queue, fd int, handler PH) (*Server[H, PH], error) {
	source, err := q.CreateRead(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	s := &Server[H, PH]{
		name:    name,
		runner:  r,
		queue:   q,
		fd:      fd,
		source:  source,
		handler: api.NewWeakHandler((*H)(handler)),
	}
	source.SetEvent(s.onReadReady)
	source.SetCancel(s.onCancel)
	return s, nil
}

// Name identifies the server for diagnostics.
func (s *Server[H, PH]) Name() string { return s.name }

// Addr reports the listen socket's bound address and port, useful after
// binding to port 0 to discover the ephemeral port the kernel picked.
func (s *Server[H, PH]) Addr() (netip.Addr, int, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return netip.Addr{}, 0, api.OperationFailed(fmt.Sprintf("getsockname: %v", err))
	}
	return fromSockaddr(sa)
}

// Start arms the accept loop. A no-op after Shutdown.
func (s *Server[H, PH]) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.started = true
	_ = s.source.Resume()
}

// Stop disarms the accept loop without releasing the listen fd. A
// no-op before Start or after Shutdown.
func (s *Server[H, PH]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || !s.started {
		return
	}
	s.started = false
	_ = s.source.Suspend()
}

// Shutdown tears the server down: resumes if suspended (so cancel can
// observe readiness), cancels the dispatch source, which in its cancel
// callback closes the listen fd exactly once. Idempotent.
func (s *Server[H, PH]) Shutdown() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()
	s.source.Cancel()
}

// onReadReady runs on the server's runner. Linux rejects the FIONREAD
// pending-count query on a listening socket, so instead of a count it
// accepts until the kernel reports EAGAIN, draining the backlog so the
// next readiness notification is not an immediate repeat.
func (s *Server[H, PH]) onReadReady() {
	for {
		connFD, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			return
		}
		s.dispatchAccepted(connFD, sa)
	}
}

func (s *Server[H, PH]) dispatchAccepted(connFD int, sa unix.Sockaddr) {
	h := s.handler.Lock()
	if h == nil {
		unix.Close(connFD)
		return
	}
	peer, port, err := fromSockaddr(sa)
	if err != nil {
		unix.Close(connFD)
		return
	}

	accepted := false
	api.Guard(func() {
		accepted = PH(h).OnConnect(connFD, peer, port)
	})
	if !accepted {
		unix.Close(connFD)
	}
}

// onCancel is the cancel callback: the dispatch source has already
// removed itself from the queue by the time this runs, so closing the
// fd is the only remaining step.
func (s *Server[H, PH]) onCancel() {
	unix.Close(s.fd)
}
