// Package logging is icxpd's log distributor: a single process-wide slog sink
// that turns records into a broadcast stream consumed by any number of
// pluggable writers.
//
// Open installs the distributor as the slog default exactly once; ordinary
// slog call sites then publish without threading a handle around. Each
// writer added with AddWriter gets its own cursor into a bounded ring and
// runs on its own goroutine. Publishing never blocks: a writer that falls
// behind by more than the ring size observes ErrLagged and skips ahead.
// Close sends a control message through the same stream and waits for every
// writer up to that writer's own join timeout.
//
// The package also carries the attribute helpers, the no-op logger and the
// shipped writers (null, JSON file, console) used across the daemon.
package logging
