package netio

import (
	"net/netip"

	"github.com/leon-m/cool.ng/api"
	"golang.org/x/sys/unix"
)

// toSockaddr converts addr/port into the unix.Sockaddr shape the raw
// socket calls expect, picking AF_INET or AF_INET6 to match addr.
func toSockaddr(addr netip.Addr, port int) unix.Sockaddr {
	if addr.Is4() {
		sa := &unix.SockaddrInet4{Port: port}
		sa.Addr = addr.As4()
		return sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	sa.Addr = addr.As16()
	return sa
}

// fromSockaddr extracts the peer address and port from an accepted
// connection's sockaddr, classifying v4 vs v6.
func fromSockaddr(sa unix.Sockaddr) (netip.Addr, int, error) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(s.Addr), s.Port, nil
	case *unix.SockaddrInet6:
		return netip.AddrFrom16(s.Addr), s.Port, nil
	default:
		return netip.Addr{}, 0, api.OperationFailed("unsupported socket address family")
	}
}

// socketFamily returns AF_INET or AF_INET6 for addr.
func socketFamily(addr netip.Addr) int {
	if addr.Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}
