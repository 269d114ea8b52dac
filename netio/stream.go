package netio

import (
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/leon-m/cool.ng/api"
	"github.com/leon-m/cool.ng/reactor"
	"golang.org/x/sys/unix"
)

type streamState int32

const (
	stateDisconnected streamState = iota
	stateStarting
	stateConnecting
	stateConnected
)

// Stream drives one TCP connection's non-blocking connect, read and
// write state machine. H is the handler's concrete struct type; PH
// pins *H as the type implementing api.StreamHandler, so handlers are
// free to use pointer-receiver methods and mutable fields.
//
// The write slot is touched only on the runner passed to the
// constructor, which must be the same runner the *reactor.Queue was
// created with. busy is a CAS flag so Write can be called from any
// goroutine; state is atomic as well, since Write reads it and Shutdown
// sets it from the caller's goroutine.
type Stream[H any, PH api.StreamHandlerPtr[H]] struct {
	name    string
	runner  api.Runner
	queue   *reactor.Queue
	handler api.WeakHandler[H]

	writerFD int
	readerFD int
	writer   *reactor.Source
	reader   *reactor.Source

	state     atomic.Int32
	destroyed atomic.Bool

	busy     atomic.Bool
	writeBuf []byte
	writePos int

	read readBuffer
}

// NewStream initiates a non-blocking connect to addr:port. buf may be
// nil, in which case a bufsz-byte buffer is allocated internally.
func NewStream[H any, PH api.StreamHandlerPtr[H]](name string, r api.Runner, q *reactor.Queue, addr netip.Addr, port int, handler PH, buf []byte, bufsz int) (*Stream[H, PH], error) {
	fd, err := unix.Socket(socketFamily(addr), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, api.OperationFailed(fmt.Sprintf("socket: %v", err))
	}
	writer, err := q.CreateWrite(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	s := &Stream[H, PH]{
		name:     name,
		runner:   r,
		queue:    q,
		handler:  api.NewWeakHandler((*H)(handler)),
		writerFD: fd,
		readerFD: -1,
		writer:   writer,
		read:     newReadBuffer(buf, bufsz),
	}
	s.state.Store(int32(stateStarting))
	writer.SetEvent(s.onConnectWriterReady)
	writer.SetCancel(s.onWriterCancel)

	connErr := unix.Connect(fd, toSockaddr(addr, port))
	switch connErr {
	case nil:
		s.state.Store(int32(stateConnecting))
		_ = writer.Resume()
		// Connect completed synchronously; synthesize the writer-ready
		// event so the rest of the state machine runs unchanged.
		r.Schedule(s.onConnectWriterReady)
	case unix.EINPROGRESS:
		s.state.Store(int32(stateConnecting))
		_ = writer.Resume()
	default:
		unix.Close(fd)
		return nil, api.OperationFailed(fmt.Sprintf("connect: %v", connErr))
	}
	return s, nil
}

// NewStreamFromFD adopts an already-connected fd, taking ownership of
// it, and moves straight to the connected state.
func NewStreamFromFD[H any, PH api.StreamHandlerPtr[H]](name string, r api.Runner, q *reactor.Queue, fd int, handler PH, buf []byte, bufsz int) (*Stream[H, PH], error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, api.OperationFailed(fmt.Sprintf("set non-blocking: %v", err))
	}
	readerFD, err := unix.Dup(fd)
	if err != nil {
		return nil, api.OperationFailed(fmt.Sprintf("dup: %v", err))
	}
	reader, err := q.CreateRead(readerFD)
	if err != nil {
		unix.Close(readerFD)
		return nil, err
	}
	writer, err := q.CreateWrite(fd)
	if err != nil {
		reader.Cancel()
		return nil, err
	}

	s := &Stream[H, PH]{
		name:     name,
		runner:   r,
		queue:    q,
		handler:  api.NewWeakHandler((*H)(handler)),
		writerFD: fd,
		readerFD: readerFD,
		writer:   writer,
		reader:   reader,
		read:     newReadBuffer(buf, bufsz),
	}
	s.state.Store(int32(stateConnected))
	writer.SetEvent(s.onWriteReady)
	writer.SetCancel(s.onWriterCancel)
	reader.SetEvent(s.onReadReady)
	reader.SetCancel(s.onReaderCancel)
	_ = reader.Resume()
	return s, nil
}

// Name identifies the stream for diagnostics.
func (s *Stream[H, PH]) Name() string { return s.name }

// Start (re)arms the reader, resuming delivery of on_read events. A
// no-op before a connection exists or after Shutdown.
func (s *Stream[H, PH]) Start() {
	if s.reader != nil {
		_ = s.reader.Resume()
	}
}

// Stop pauses on_read delivery without tearing the stream down.
func (s *Stream[H, PH]) Stop() {
	if s.reader != nil {
		_ = s.reader.Suspend()
	}
}

// Shutdown tears the stream down unconditionally: cancels both dispatch
// sources (closing their fds in the process). Unlike an organic
// disconnect, an explicit Shutdown does not deliver a StreamDisconnected
// event — the caller already knows the stream is going away. Idempotent.
func (s *Stream[H, PH]) Shutdown() {
	s.teardown(api.StreamDisconnected, false)
}

// Write submits data[:n] as the stream's single in-flight write. Fails
// with IllegalState if the stream is not connected or a previous write
// has not yet completed. The slice must remain valid until OnWrite is
// delivered.
func (s *Stream[H, PH]) Write(data []byte, n int) error {
	if streamState(s.state.Load()) != stateConnected {
		return api.IllegalState("write requires a connected stream")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return api.IllegalState("a write is already in flight")
	}
	buf := data[:n]
	s.runner.Schedule(func() {
		if streamState(s.state.Load()) != stateConnected {
			s.busy.Store(false)
			return
		}
		if len(buf) == 0 {
			// A zero-length write completes without touching the
			// socket but still delivers exactly one OnWrite.
			s.busy.Store(false)
			s.deliverWrite(buf)
			return
		}
		s.writeBuf = buf
		s.writePos = 0
		_ = s.writer.Resume()
	})
	return nil
}

// onConnectWriterReady is the writer's event callback while connecting;
// it is replaced by onWriteReady once the connect attempt resolves.
func (s *Stream[H, PH]) onConnectWriterReady() {
	if streamState(s.state.Load()) != stateConnecting {
		return
	}
	ok, probeErr := connectSucceeded(s.writerFD)
	_ = s.writer.Suspend()
	if probeErr != nil || !ok {
		s.state.Store(int32(stateDisconnected))
		s.notify(api.StreamConnectFailed)
		return
	}

	readerFD, err := unix.Dup(s.writerFD)
	if err == nil {
		err = unix.SetNonblock(readerFD, true)
	}
	if err != nil {
		if readerFD > 0 {
			unix.Close(readerFD)
		}
		s.state.Store(int32(stateDisconnected))
		s.notify(api.StreamConnectFailed)
		return
	}
	reader, err := s.queue.CreateRead(readerFD)
	if err != nil {
		unix.Close(readerFD)
		s.state.Store(int32(stateDisconnected))
		s.notify(api.StreamConnectFailed)
		return
	}

	s.readerFD = readerFD
	s.reader = reader
	reader.SetEvent(s.onReadReady)
	reader.SetCancel(s.onReaderCancel)
	_ = reader.Resume()

	s.writer.SetEvent(s.onWriteReady)
	s.state.Store(int32(stateConnected))
	s.notify(api.StreamConnected)
}

// onWriteReady drains the current write slot, possibly across several
// readiness events, and delivers OnWrite once it is fully written.
func (s *Stream[H, PH]) onWriteReady() {
	if streamState(s.state.Load()) != stateConnected {
		return
	}
	n, err := unix.Write(s.writerFD, s.writeBuf[s.writePos:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		// Per policy, runtime write errors are swallowed rather than
		// surfaced; the open slot is dropped without an OnWrite.
		s.writeBuf = nil
		s.writePos = 0
		s.busy.Store(false)
		_ = s.writer.Suspend()
		return
	}
	s.writePos += n
	if s.writePos < len(s.writeBuf) {
		return
	}
	_ = s.writer.Suspend()
	written := s.writeBuf
	s.writeBuf = nil
	s.writePos = 0
	s.busy.Store(false)
	s.deliverWrite(written)
}

func (s *Stream[H, PH]) deliverWrite(buf []byte) {
	h := s.handler.Lock()
	if h == nil {
		return
	}
	api.Guard(func() { PH(h).OnWrite(buf, len(buf)) })
}

// onReadReady performs one read(2) per readiness notification and
// delivers OnRead, detecting and honoring a handler-initiated buffer
// swap (P5).
func (s *Stream[H, PH]) onReadReady() {
	if streamState(s.state.Load()) != stateConnected {
		return
	}
	pending, err := reactor.Pending(s.readerFD)
	if err != nil || pending == 0 {
		s.teardown(api.StreamDisconnected, true)
		return
	}

	n, err := unix.Read(s.readerFD, s.read.buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		s.teardown(api.StreamDisconnected, true)
		return
	}
	if n == 0 {
		s.teardown(api.StreamDisconnected, true)
		return
	}

	h := s.handler.Lock()
	if h == nil {
		return
	}
	size := n
	bufRef := s.read.buf
	api.Guard(func() { PH(h).OnRead(&bufRef, &size) })
	s.read.adopt(bufRef)
}

func (s *Stream[H, PH]) notify(evt api.StreamEvent) {
	h := s.handler.Lock()
	if h == nil {
		return
	}
	api.Guard(func() { PH(h).OnEvent(evt) })
}

// teardown cancels whichever sources exist, delivering evt exactly once
// when notify is true; cancellation (and the fd closes it triggers)
// proceeds asynchronously on the runner. notify is false only for an
// explicit Shutdown, which the caller already knows about.
func (s *Stream[H, PH]) teardown(evt api.StreamEvent, notify bool) {
	if !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	s.state.Store(int32(stateDisconnected))
	s.busy.Store(false)
	if s.reader != nil {
		s.reader.Cancel()
	}
	if s.writer != nil {
		s.writer.Cancel()
	}
	if notify {
		s.notify(evt)
	}
}

func (s *Stream[H, PH]) onWriterCancel() {
	unix.Close(s.writerFD)
}

func (s *Stream[H, PH]) onReaderCancel() {
	if s.readerFD >= 0 {
		unix.Close(s.readerFD)
	}
}
