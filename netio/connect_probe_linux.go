//go:build linux

// File: netio/connect_probe_linux.go
//
// Connect-readiness predicate, Linux variant. The corresponding C++
// source's rationale table keys off a byte-count reported alongside
// the write-ready event (kqueue's EVFILT_WRITE "data" field on BSD) and
// treats a non-zero count on Linux as failure. Linux epoll does not
// surface such a count on EPOLLOUT, so rather than fake one this
// implementation asks the kernel directly: read SO_ERROR. Zero means
// the three-way handshake completed; non-zero is the connect errno.
// This is the platform adapter the design notes call for -- the state
// machine in stream.go only ever sees "succeeded" or "failed".

package netio

import "golang.org/x/sys/unix"

// connectSucceeded reports whether a non-blocking connect on fd
// completed successfully, consuming and clearing the pending SO_ERROR.
func connectSucceeded(fd int) (bool, error) {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, err
	}
	return errno == 0, nil
}
