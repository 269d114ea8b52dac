//go:build !linux

// File: netio/connect_probe_other.go
//
// Stub connect-readiness predicate for platforms without the
// SO_ERROR-based probe wired up yet; see connect_probe_linux.go.

package netio

import "github.com/leon-m/cool.ng/api"

func connectSucceeded(fd int) (bool, error) {
	return false, api.OperationFailed("connect readiness probe not implemented on this platform")
}
