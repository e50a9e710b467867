package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"icxpd/internal/config"
	"icxpd/internal/daemon"
	"icxpd/internal/journal"
	"icxpd/internal/logging"
	"icxpd/internal/workdir"
)

const stopTimeout = 5 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is the file watched for log level changes; empty disables
	// watching.
	ConfigPath string
	// LogLevel overrides logging.level from the config file. The
	// ICXPD_LOG_LEVEL environment variable still wins.
	LogLevel string
	// Console adds a console writer in addition to the configured writers.
	Console bool
	// Handler executes commands; nil ignores them.
	Handler daemon.Handler
	// Started, when set, is called once the daemon is accepting connections.
	Started func(daemon.Status)
}

// Run starts the icxpd daemon and blocks until ctx ends or SIGINT/SIGTERM
// arrives, then shuts down in reverse order.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := workdir.Ensure(cfg.Paths.WorkDir); err != nil {
		return err
	}

	levelOverride := cfg.Logging.Level
	if opts.LogLevel != "" {
		levelOverride = opts.LogLevel
	}
	dist, err := logging.Open(logging.Options{
		LevelOverride: levelOverride,
		BufferSize:    cfg.Logging.BufferSize,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logging.Reset()
	defer func() { _ = dist.Close() }()

	writers, err := BuildWriters(cfg, opts.Console)
	if err != nil {
		return err
	}
	for _, w := range writers {
		if err := dist.AddWriter(w); err != nil {
			return fmt.Errorf("add log writer %q: %w", w.Name(), err)
		}
	}

	logger := dist.Logger()
	logger.Info("icxpd starting",
		logging.String("work_dir", cfg.Paths.WorkDir),
		logging.String("level", dist.Level().String()),
		logging.Int("writers", len(writers)),
		logging.String(logging.FieldEventType, "daemon_starting"),
	)
	pruneLogs(signalCtx, logger, cfg)

	d, err := daemon.New(cfg, logger, opts.Handler)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "stop the running instance or remove the stale lock"),
		)
		return err
	}

	if cfg.Daemon.WatchConfig && opts.ConfigPath != "" {
		watcher := config.NewWatcher(opts.ConfigPath, cfg.Paths.WorkDir, logger, func(next *config.Config) {
			applyLevel(dist, logger, next.Logging.Level)
		})
		go func() {
			if err := watcher.Run(signalCtx); err != nil {
				logging.WarnWithContext(logger, "config watcher stopped", "config_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "log level changes require a restart"),
				)
			}
		}()
	}

	if opts.Started != nil {
		opts.Started(d.Status())
	}

	<-signalCtx.Done()
	logger.Info("icxpd daemon shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	return d.Stop(stopCtx)
}

// BuildWriters constructs the configured log writers.
func BuildWriters(cfg *config.Config, console bool) ([]logging.Writer, error) {
	writers := make([]logging.Writer, 0, len(cfg.Logging.Writers)+1)
	hasConsole := false
	for _, wc := range cfg.Logging.Writers {
		var (
			w   logging.Writer
			err error
		)
		switch wc.Kind {
		case config.WriterNull:
			w = logging.NullWriter{Timeout: wc.JoinTimeout()}
		case config.WriterFile:
			w, err = logging.NewFileWriter(wc.Name, wc.Path, wc.JoinTimeout())
		case config.WriterConsole:
			hasConsole = true
			w = logging.NewConsoleWriter(wc.Name, os.Stderr, wc.JoinTimeout())
		case config.WriterJournal:
			w, err = journal.NewWriter(wc.Name, wc.Path, wc.JoinTimeout())
		default:
			err = fmt.Errorf("unknown writer kind %q", wc.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("log writer %q: %w", wc.Name, err)
		}
		writers = append(writers, w)
	}
	if console && !hasConsole {
		writers = append(writers, logging.NewConsoleWriter("", os.Stderr, time.Second))
	}
	return writers, nil
}

func applyLevel(dist *logging.Distributor, logger *slog.Logger, value string) {
	if _, ok := logging.EnvOverride(); ok {
		logger.Debug("log level pinned by environment; ignoring config change")
		return
	}
	level, ok := logging.ParseLevel(value)
	if !ok {
		level = logging.DefaultLevel
	}
	if level == dist.Level() {
		return
	}
	dist.SetLevel(level)
	logger.Info("log level changed", logging.String("level", level.String()))
}

func pruneLogs(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	days := cfg.Logging.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	for _, wc := range cfg.Logging.Writers {
		switch wc.Kind {
		case config.WriterFile:
			if _, err := logging.PruneRotated(logger, wc.Path, cutoff); err != nil {
				logger.Warn("log retention skipped", logging.String("log", wc.Path), logging.Error(err))
			}
		case config.WriterJournal:
			store, err := journal.Open(wc.Path)
			if err != nil {
				logger.Warn("journal retention skipped", logging.Error(err))
				continue
			}
			removed, err := store.Prune(ctx, cutoff)
			_ = store.Close()
			if err != nil {
				logger.Warn("journal retention failed", logging.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("journal pruned", logging.Int64("removed", removed))
			}
		}
	}
}
