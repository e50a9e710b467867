// Package config loads, normalizes, and validates icxpd configuration data.
//
// It supplies repository defaults, resolves paths relative to the daemon's
// work directory (including tilde shortcuts), reads TOML files and honours
// environment fallbacks such as ICXPD_CONFIG. The Config type centralizes
// every knob the daemon and CLI need: listener sizing and shutdown budgets,
// log distributor sizing and the set of log writers to attach.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
