package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"icxpd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a loaded config rooted in a fresh, short work directory
// so the socket path stays within the unix address limit. Listener budgets
// are tightened to keep shutdown fast in tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := ShortTempDir(t)
	cfg, _, _, err := config.Load(filepath.Join(base, "missing.toml"), base)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Listener.ShutdownConnectDelayMs = 10
	cfg.Listener.ShutdownPollIntervalMs = 10
	cfg.Listener.DrainTimeoutMs = 200
	cfg.Listener.AcceptRetryDelayMs = 10
	cfg.Logging.RetentionDays = 0

	builder := &configBuilder{t: t, baseDir: base, cfg: cfg}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWriters replaces the configured log writers. Relative paths resolve
// against the work directory.
func WithWriters(writers ...config.Writer) ConfigOption {
	return func(b *configBuilder) {
		out := make([]config.Writer, 0, len(writers))
		for _, w := range writers {
			if w.Path != "" && !filepath.IsAbs(w.Path) {
				w.Path = filepath.Join(b.baseDir, w.Path)
			}
			if w.JoinTimeoutMs == 0 {
				w.JoinTimeoutMs = 1000
			}
			out = append(out, w)
		}
		b.cfg.Logging.Writers = out
	}
}

// WithLevel sets logging.level.
func WithLevel(level string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Logging.Level = level
	}
}

// WithQueueSize sets listener.command_queue_size.
func WithQueueSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Listener.CommandQueueSize = size
	}
}

// BaseDir returns the work directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.WorkDir
}

// ShortTempDir creates a temp directory directly under the system temp root.
// t.TempDir nests under the test name, which can push socket paths past the
// unix address limit.
func ShortTempDir(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "icxpd")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}
