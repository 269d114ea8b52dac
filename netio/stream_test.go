package netio

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/leon-m/cool.ng/api"
	"github.com/leon-m/cool.ng/reactor"
	"github.com/leon-m/cool.ng/runner"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []api.StreamEvent
	reads  [][]byte
	writes int
}

func (h *recordingHandler) OnRead(buf *[]byte, n *int) {
	h.mu.Lock()
	cp := append([]byte(nil), (*buf)[:*n]...)
	h.reads = append(h.reads, cp)
	h.mu.Unlock()
}

func (h *recordingHandler) OnWrite(buf []byte, n int) {
	h.mu.Lock()
	h.writes++
	h.mu.Unlock()
}

func (h *recordingHandler) OnEvent(evt api.StreamEvent) {
	h.mu.Lock()
	h.events = append(h.events, evt)
	h.mu.Unlock()
}

func (h *recordingHandler) waitFor(t *testing.T, evt api.StreamEvent) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		for _, e := range h.events {
			if e == evt {
				h.mu.Unlock()
				return
			}
		}
		h.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event %v", evt)
}

// P2: connecting to a listening peer delivers exactly one
// StreamConnected, before any read/write events.
func TestStreamConnectSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(200 * time.Millisecond)
		}
	}()

	r := runner.New("stream-connect")
	defer r.Close()
	q, err := reactor.NewQueue(r)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	defer q.Close()

	addrPort := ln.Addr().(*net.TCPAddr)
	h := &recordingHandler{}
	s, err := NewStream("client", r, q, netip.MustParseAddr("127.0.0.1"), addrPort.Port, h, nil, 4096)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer s.Shutdown()

	h.waitFor(t, api.StreamConnected)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) != 1 || h.events[0] != api.StreamConnected {
		t.Fatalf("events = %v, want exactly [connected]", h.events)
	}
}

// Connecting to a closed port delivers connect_failed within a bounded
// time.
func TestStreamConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // nothing listens here anymore

	r := runner.New("stream-connect-fail")
	defer r.Close()
	q, err := reactor.NewQueue(r)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	defer q.Close()

	h := &recordingHandler{}
	s, err := NewStream("client", r, q, netip.MustParseAddr("127.0.0.1"), port, h, nil, 4096)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer s.Shutdown()

	h.waitFor(t, api.StreamConnectFailed)
}

// EOF from the peer delivers disconnected; a second Write while the
// first is in flight fails (P1), and the first write completes with
// exactly one OnWrite.
func TestStreamDisconnectAndWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	peerDone := make(chan struct{})
	go func() {
		defer close(peerDone)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 64)
		n, _ := c.Read(buf)
		_ = n
		c.Close()
	}()

	r := runner.New("stream-write")
	defer r.Close()
	q, err := reactor.NewQueue(r)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	defer q.Close()

	addrPort := ln.Addr().(*net.TCPAddr)
	h := &recordingHandler{}
	s, err := NewStream("client", r, q, netip.MustParseAddr("127.0.0.1"), addrPort.Port, h, nil, 4096)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer s.Shutdown()

	h.waitFor(t, api.StreamConnected)

	if err := s.Write([]byte("hello"), 5); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write([]byte("world"), 5); err == nil {
		t.Fatal("second concurrent write should fail with IllegalState")
	}

	<-peerDone
	h.waitFor(t, api.StreamDisconnected)

	h.mu.Lock()
	writes := h.writes
	h.mu.Unlock()
	if writes != 1 {
		t.Fatalf("writes = %d, want 1", writes)
	}
}

// Zero-byte write is a no-op that still delivers exactly one OnWrite.
func TestStreamZeroByteWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(500 * time.Millisecond)
		}
	}()

	r := runner.New("stream-zero-write")
	defer r.Close()
	q, err := reactor.NewQueue(r)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	defer q.Close()

	addrPort := ln.Addr().(*net.TCPAddr)
	h := &recordingHandler{}
	s, err := NewStream("client", r, q, netip.MustParseAddr("127.0.0.1"), addrPort.Port, h, nil, 4096)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer s.Shutdown()

	h.waitFor(t, api.StreamConnected)

	if err := s.Write(nil, 0); err != nil {
		t.Fatalf("zero-byte Write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		w := h.writes
		h.mu.Unlock()
		if w == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("zero-byte write never delivered OnWrite")
}
