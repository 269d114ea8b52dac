// Package reactor implements the dispatch binding: a cooperative I/O
// readiness multiplexer that notifies a Runner's queue when a file
// descriptor becomes read- or write-ready, with the resume/suspend/cancel
// primitives a GCD dispatch_source provides.
//
// One Queue multiplexes many Sources. Its poll loop runs on a dedicated
// background goroutine, but every Source callback it fires is handed to
// the owning Runner's Schedule method first, so the callback itself
// always executes serially with everything else bound to that runner.
//
// Platform-specific backends live in queue_linux.go (epoll) and
// queue_other.go (unsupported-platform stub); see each for the adapter
// this package expects a new platform port to provide.
package reactor
