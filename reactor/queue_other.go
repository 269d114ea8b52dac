//go:build !linux

// File: reactor/queue_other.go
//
// Stub backend for platforms without an epoll-equivalent wired up yet.
// The dispatch binding's contract (create_read/create_write, resume,
// suspend, cancel) is platform-neutral by design (see the package doc's
// note on the platform adapter); only this file would need a counterpart
// -- a kqueue or IOCP poller -- to port the engine elsewhere.

package reactor

func newPoller() (poller, error) {
	return nil, ErrUnsupportedPlatform
}
