package netio

import (
	"io"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/leon-m/cool.ng/reactor"
	"github.com/leon-m/cool.ng/runner"
)

type acceptHandler struct {
	mu    sync.Mutex
	calls int
	port  int
}

func (h *acceptHandler) OnConnect(fd int, peer netip.Addr, port int) bool {
	h.mu.Lock()
	h.calls++
	h.port = port
	h.mu.Unlock()
	return true
}

// S6: open a listener on 127.0.0.1:0, connect once, handler returns
// true. Expect exactly one OnConnect with the correct peer port. Since
// the handler accepts, the server leaves the accepted fd open; this
// test does not inspect the fd itself.
func TestServerAcceptDelivery(t *testing.T) {
	r := runner.New("server-test")
	defer r.Close()
	q, err := reactor.NewQueue(r)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	defer q.Close()

	h := &acceptHandler{}
	srv, err := NewServer("test-server", r, q, netip.MustParseAddr("127.0.0.1"), 0, h)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown()
	srv.Start()

	_, port, err := srv.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	conn, err := net.DialTimeout("tcp", netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(port)).String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		calls := h.calls
		h.mu.Unlock()
		if calls > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls != 1 {
		t.Fatalf("OnConnect called %d times, want 1", h.calls)
	}
	localPort := conn.LocalAddr().(*net.TCPAddr).Port
	if h.port != localPort {
		t.Fatalf("peer port = %d, want %d", h.port, localPort)
	}
}

// A handler that declines ownership; the framework must close the
// accepted fd itself.
type decliningHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *decliningHandler) OnConnect(fd int, peer netip.Addr, port int) bool {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return false
}

func TestServerDecliningHandlerClosesFD(t *testing.T) {
	r := runner.New("server-test-decline")
	defer r.Close()
	q, err := reactor.NewQueue(r)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	defer q.Close()

	h := &decliningHandler{}
	srv, err := NewServer("declining-server", r, q, netip.MustParseAddr("127.0.0.1"), 0, h)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown()
	srv.Start()

	_, port, err := srv.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	conn, err := net.DialTimeout("tcp", netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(port)).String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		calls := h.calls
		h.mu.Unlock()
		if calls > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls != 1 {
		t.Fatalf("OnConnect called %d times, want 1", h.calls)
	}

	// The server closed its end, so the client reads EOF.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("client read after decline = %v, want io.EOF", err)
	}
}
