// Package daemon owns the long-running icxpd process: the flock-based
// single-instance lock, the pid file, the command socket listener and the
// dispatcher that consumes the command channel.
//
// Start acquires the lock before binding so a second instance fails fast
// instead of deleting a live instance's socket. Stop shuts the listener down
// first, then drains the dispatcher and finally releases the lock.
package daemon
