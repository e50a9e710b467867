// Package logs reads the JSON-lines files written by the file log writer.
//
// Tail returns the newest records and the byte offset just past them, ReadFrom
// resumes from such an offset, and Follow streams new records as the daemon
// appends them. Only complete lines are consumed, so a record that is still
// being written is picked up on the next read. An offset beyond the end of
// the file means the file was rotated and reading restarts at the top.
package logs
