// Package command defines the daemon's command values, the placeholder line
// parser and the bounded channel that carries commands from socket
// connections to the single dispatcher.
//
// The command grammar is intentionally not defined yet: every line parses to
// a Nop that keeps the raw text so dispatch can be designed separately
// without changing the transport.
package command
