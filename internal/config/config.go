package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "ICXPD_CONFIG"

// Writer kinds understood by the daemon runtime.
const (
	WriterNull    = "null"
	WriterFile    = "file"
	WriterConsole = "console"
	WriterJournal = "journal"
)

// Paths contains filesystem locations. WorkDir is filled in by Load.
type Paths struct {
	WorkDir    string `toml:"work_dir"`
	SocketName string `toml:"socket_name"`
}

// Listener contains command socket sizing and shutdown budgets.
type Listener struct {
	CommandQueueSize        int `toml:"command_queue_size"`
	MaxLineBytes            int `toml:"max_line_bytes"`
	ShutdownConnectAttempts int `toml:"shutdown_connect_attempts"`
	ShutdownConnectDelayMs  int `toml:"shutdown_connect_delay_ms"`
	ShutdownPollAttempts    int `toml:"shutdown_poll_attempts"`
	ShutdownPollIntervalMs  int `toml:"shutdown_poll_interval_ms"`
	DrainTimeoutMs          int `toml:"drain_timeout_ms"`
	AcceptRetryDelayMs      int `toml:"accept_retry_delay_ms"`
}

// Writer describes one log writer attached to the distributor at startup.
type Writer struct {
	Kind          string `toml:"kind"`
	Name          string `toml:"name"`
	Path          string `toml:"path"`
	JoinTimeoutMs int    `toml:"join_timeout_ms"`
}

// JoinTimeout returns the writer's shutdown allowance.
func (w Writer) JoinTimeout() time.Duration {
	return time.Duration(w.JoinTimeoutMs) * time.Millisecond
}

// Logging contains log distributor configuration.
type Logging struct {
	// Level is applied when ICXPD_LOG_LEVEL is unset. Empty keeps the
	// distributor default.
	Level         string   `toml:"level"`
	BufferSize    int      `toml:"buffer_size"`
	RetentionDays int      `toml:"retention_days"`
	Writers       []Writer `toml:"writers"`
}

// Daemon contains runtime loop settings.
type Daemon struct {
	// HeartbeatInterval in seconds; 0 disables the heartbeat log.
	HeartbeatInterval int  `toml:"heartbeat_interval"`
	WatchConfig       bool `toml:"watch_config"`
}

// Config encapsulates all configuration values for icxpd.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Listener Listener `toml:"listener"`
	Logging  Logging  `toml:"logging"`
	Daemon   Daemon   `toml:"daemon"`
}

// Load locates, parses, and validates a configuration file for the given
// work directory. A missing file is not an error; defaults apply. The
// returned values are the config, the resolved file path and whether it
// existed.
func Load(path, workDir string) (*Config, string, bool, error) {
	if strings.TrimSpace(workDir) == "" {
		return nil, "", false, errors.New("config: work directory is required")
	}
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path, workDir)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if strings.TrimSpace(cfg.Paths.WorkDir) == "" {
		cfg.Paths.WorkDir = workDir
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path, workDir string) (string, bool, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		candidate = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if candidate == "" {
		candidate = filepath.Join(workDir, defaultConfigName)
	}
	expanded, err := expandPath(candidate, workDir)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	switch {
	case err == nil && info.IsDir():
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	case err == nil:
		return expanded, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return expanded, false, nil
	default:
		return "", false, fmt.Errorf("stat config: %w", err)
	}
}

// SocketPath returns the command socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.WorkDir, c.Paths.SocketName)
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, defaultLockName)
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.WorkDir, defaultPIDName)
}

// ConfigPath returns the default config file location inside the work directory.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Paths.WorkDir, defaultConfigName)
}

// JournalPath returns the path of the first journal writer, or the default
// journal location when none is configured.
func (c *Config) JournalPath() string {
	for _, w := range c.Logging.Writers {
		if w.Kind == WriterJournal && w.Path != "" {
			return w.Path
		}
	}
	return filepath.Join(c.Paths.WorkDir, defaultJournalName)
}

// ShutdownConnectDelay returns the pause between self-connect attempts.
func (l Listener) ShutdownConnectDelay() time.Duration {
	return time.Duration(l.ShutdownConnectDelayMs) * time.Millisecond
}

// ShutdownPollInterval returns the pause between shutdown confirmation polls.
func (l Listener) ShutdownPollInterval() time.Duration {
	return time.Duration(l.ShutdownPollIntervalMs) * time.Millisecond
}

// DrainTimeout returns how long teardown waits for connection handlers.
func (l Listener) DrainTimeout() time.Duration {
	return time.Duration(l.DrainTimeoutMs) * time.Millisecond
}

// AcceptRetryDelay returns the pause after a failed accept.
func (l Listener) AcceptRetryDelay() time.Duration {
	return time.Duration(l.AcceptRetryDelayMs) * time.Millisecond
}

// HeartbeatEvery returns the heartbeat period, zero when disabled.
func (d Daemon) HeartbeatEvery() time.Duration {
	return time.Duration(d.HeartbeatInterval) * time.Second
}

// expandPath resolves tilde shortcuts and makes relative paths absolute
// against base.
func expandPath(pathValue, base string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	if !filepath.IsAbs(pathValue) && base != "" {
		pathValue = filepath.Join(base, pathValue)
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue, base string) (string, error) {
	return expandPath(pathValue, base)
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
