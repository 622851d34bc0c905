// Package lifecycle holds the process-wide draining flag.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining once SIGTERM or SIGINT arrives. While
// set, /health answers 503 "shutting-down" so the load balancer stops sending dashboard
// traffic before the server and pollers stop.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
