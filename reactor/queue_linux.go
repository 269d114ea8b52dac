//go:build linux

// File: reactor/queue_linux.go
//
// Linux epoll backend for the dispatch binding. Level-triggered epoll
// maps directly onto the "resumed continuously while ready" semantics
// the stream read side requires: as long as a descriptor is registered
// (armed) and bytes remain unread, EPOLLIN keeps firing.

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd int

	mu   sync.Mutex
	mode map[int]bool // fd -> write (true) or read (false); one direction per fd
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollPoller{epfd: epfd, mode: make(map[int]bool)}, nil
}

func eventsFor(write bool) uint32 {
	if write {
		return unix.EPOLLOUT
	}
	return unix.EPOLLIN | unix.EPOLLRDHUP
}

func (p *epollPoller) add(fd int, write bool) error {
	ev := unix.EpollEvent{Events: eventsFor(write), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add: %w", err)
	}
	p.mu.Lock()
	p.mode[fd] = write
	p.mu.Unlock()
	return nil
}

func (p *epollPoller) remove(fd int, write bool) error {
	p.mu.Lock()
	delete(p.mode, fd)
	p.mu.Unlock()
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

func (p *epollPoller) wait() ([]readyEvent, error) {
	var raw [128]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, raw[:], -1)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	out := make([]readyEvent, 0, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		write, ok := p.mode[fd]
		if !ok {
			continue
		}
		out = append(out, readyEvent{fd: fd, write: write})
	}
	p.mu.Unlock()
	return out, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
