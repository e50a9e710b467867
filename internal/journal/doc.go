// Package journal persists log records in SQLite so `icxpd journal` can show
// recent history after the daemon has exited. Writer adapts the store to the
// logging.Writer contract.
package journal
