// Package netio implements the server and stream event sources: the
// two TCP-facing components built on top of the reactor package's
// dispatch binding. Server accepts inbound connections and hands them
// to a user handler; Stream drives a single connection's non-blocking
// connect, read and write state machine.
//
// Both types share the C4 lifecycle contract (name/start/stop/shutdown)
// and hold their user handler by weak reference via api.WeakHandler, so
// neither package ever keeps a handler alive past the caller's own
// ownership of it.
package netio
