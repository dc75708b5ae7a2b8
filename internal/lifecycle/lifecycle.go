// Package lifecycle tracks the process-wide draining flag. Interval queries
// can hold connections open through multi-year FTP fetches, so the health
// endpoint flips to 503 as soon as shutdown starts, before those requests
// finish draining.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown records that the process received SIGTERM/SIGINT and is
// draining. The health handler reports shutting-down while set.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not
// receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
