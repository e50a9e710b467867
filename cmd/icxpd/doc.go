// Command icxpd runs the icxpd daemon and talks to it over its unix socket.
//
// `icxpd daemon` starts the long-running process; `icxpd send` writes command
// lines to the socket; `icxpd status` and `icxpd stop` inspect and signal a
// running daemon through its pid and lock files; `icxpd journal` prints the
// SQLite log journal; `icxpd config` creates, validates and shows the TOML
// configuration.
package main
