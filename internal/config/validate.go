package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownLevels = map[string]struct{}{
	"trace": {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateListener(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.ContainsAny(c.Paths.SocketName, `/\`) {
		return fmt.Errorf("paths.socket_name %q must be a file name, not a path", c.Paths.SocketName)
	}
	return nil
}

func (c *Config) validateListener() error {
	l := c.Listener
	if l.CommandQueueSize <= 0 {
		return errors.New("listener.command_queue_size must be positive")
	}
	if l.MaxLineBytes < 64 {
		return errors.New("listener.max_line_bytes must be at least 64")
	}
	if l.ShutdownConnectAttempts < 1 {
		return errors.New("listener.shutdown_connect_attempts must be at least 1")
	}
	if l.ShutdownPollAttempts < 1 {
		return errors.New("listener.shutdown_poll_attempts must be at least 1")
	}
	for name, value := range map[string]int{
		"listener.shutdown_connect_delay_ms": l.ShutdownConnectDelayMs,
		"listener.shutdown_poll_interval_ms": l.ShutdownPollIntervalMs,
		"listener.drain_timeout_ms":          l.DrainTimeoutMs,
		"listener.accept_retry_delay_ms":     l.AcceptRetryDelayMs,
	} {
		if value < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.Level != "" {
		if _, ok := knownLevels[c.Logging.Level]; !ok {
			return fmt.Errorf("logging.level: unsupported value %q (expected trace, debug, info, warn or error)", c.Logging.Level)
		}
	}
	if c.Logging.BufferSize <= 0 {
		return errors.New("logging.buffer_size must be positive")
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Logging.Writers))
	for i, w := range c.Logging.Writers {
		switch w.Kind {
		case WriterNull, WriterConsole:
		case WriterFile, WriterJournal:
			if w.Path == "" {
				return fmt.Errorf("logging.writers[%d]: %s writer requires a path", i, w.Kind)
			}
		default:
			return fmt.Errorf("logging.writers[%d].kind: unsupported value %q", i, w.Kind)
		}
		if w.JoinTimeoutMs < 0 {
			return fmt.Errorf("logging.writers[%d].join_timeout_ms must not be negative", i)
		}
		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("logging.writers[%d].name %q is not unique", i, w.Name)
		}
		seen[w.Name] = struct{}{}
	}
	return nil
}
