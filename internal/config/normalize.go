package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeListener()
	return c.normalizeLogging()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir), ""); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	c.Paths.SocketName = strings.TrimSpace(c.Paths.SocketName)
	if c.Paths.SocketName == "" {
		c.Paths.SocketName = defaultSocketName
	}
	return nil
}

func (c *Config) normalizeListener() {
	l := &c.Listener
	if l.CommandQueueSize == 0 {
		l.CommandQueueSize = defaultCommandQueueSize
	}
	if l.MaxLineBytes == 0 {
		l.MaxLineBytes = defaultMaxLineBytes
	}
	if l.ShutdownConnectAttempts == 0 {
		l.ShutdownConnectAttempts = defaultShutdownConnectAttempts
	}
	if l.ShutdownConnectDelayMs == 0 {
		l.ShutdownConnectDelayMs = defaultShutdownConnectDelayMs
	}
	if l.ShutdownPollAttempts == 0 {
		l.ShutdownPollAttempts = defaultShutdownPollAttempts
	}
	if l.ShutdownPollIntervalMs == 0 {
		l.ShutdownPollIntervalMs = defaultShutdownPollIntervalMs
	}
	if l.DrainTimeoutMs == 0 {
		l.DrainTimeoutMs = defaultDrainTimeoutMs
	}
	if l.AcceptRetryDelayMs == 0 {
		l.AcceptRetryDelayMs = defaultAcceptRetryDelayMs
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.BufferSize == 0 {
		c.Logging.BufferSize = defaultLogBufferSize
	}
	if len(c.Logging.Writers) == 0 {
		c.Logging.Writers = defaultWriters()
	}
	for i := range c.Logging.Writers {
		w := &c.Logging.Writers[i]
		w.Kind = strings.ToLower(strings.TrimSpace(w.Kind))
		w.Name = strings.TrimSpace(w.Name)
		if w.Name == "" {
			w.Name = defaultWriterName(w.Kind)
		}
		if w.JoinTimeoutMs == 0 {
			w.JoinTimeoutMs = defaultWriterJoinTimeoutMs
		}
		path := strings.TrimSpace(w.Path)
		if path == "" {
			switch w.Kind {
			case WriterFile:
				path = defaultLogFileName
			case WriterJournal:
				path = defaultJournalName
			}
		}
		if path == "" {
			w.Path = ""
			continue
		}
		expanded, err := expandPath(path, c.Paths.WorkDir)
		if err != nil {
			return fmt.Errorf("logging.writers[%d].path: %w", i, err)
		}
		w.Path = filepath.Clean(expanded)
	}
	return nil
}

func defaultWriterName(kind string) string {
	switch kind {
	case WriterNull:
		return "Null Writer"
	case WriterFile:
		return "File Writer"
	case WriterConsole:
		return "Console Writer"
	case WriterJournal:
		return "Journal Writer"
	default:
		return kind
	}
}
