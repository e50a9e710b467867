// Package listener accepts client connections on the daemon's unix socket and
// turns newline-delimited input into commands on a shared command.Channel.
//
// Shutdown wakes the blocked accept loop by connecting to its own socket and
// sending a reserved sentinel line, then waits a bounded time for the loop to
// confirm on a side channel before tearing everything down. Teardown runs at
// most once and always removes the socket file.
package listener
